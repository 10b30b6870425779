package prompts

// System role definitions
const (
	// CodeReviewerRole is sent as the system message of every review call
	CodeReviewerRole = "You are an expert code reviewer. You answer with a single JSON object and nothing else."
)

// Core instruction templates
const (
	// VerboseInstructions opens the verbose prompt
	VerboseInstructions = `Review the following code changes of one file and focus on problems that must be fixed.`

	// CompactInstructions opens the compact prompt
	CompactInstructions = `Code audit: check the changes below and report problems only.`

	// DefaultGuidelines is used when no team guidelines are configured
	DefaultGuidelines = `- Focus on bugs, security issues and error handling
- Flag magic values, especially in amounts and monetary parameters
- Flag unclear naming and hard to maintain code
- Do not comment on formatting, imports or whitespace-only changes`
)

// Section headers
const (
	FilePathLabel      = "File path: "
	CommitMessageLabel = "Commit message: "
	NewFileNote        = "Note: this is a new file"
	AddedHeader        = "Added code:"
	RemovedHeader      = "Removed code:"

	CompactFileLabel    = "File: "
	CompactCommitLabel  = "Commit: "
	CompactNewFileNote  = "[new file]"
	CompactAddedHeader  = "+++ added:"
	CompactRemoveHeader = "--- removed:"
)

// MaxRemovedLinesShown is the largest number of removed lines included in a
// prompt. Larger removals are left out entirely.
const MaxRemovedLinesShown = 10

// JSON structure templates
const (
	// VerboseJSONStructure describes the expected output in full
	VerboseJSONStructure = `Output the result strictly in the following JSON format and add nothing else:
{
  "hasIssues": true/false,
  "fileEvaluation": "short overall evaluation of the file",
  "issues": [
    {
      "description": "detailed description of the problem",
      "codeLine": line number of the problem (integer, starting at 1),
      "issueType": "error|warning|suggestion",
      "severity": "high|medium|low",
      "suggestedFix": "concrete fix",
      "fixedCodeExample": "code after the fix",
      "reason": "why it must change, including the rule or risk involved"
    }
  ]
}
Notes:
1. When hasIssues is false the issues array must be empty
2. Use the real line number for codeLine; use -1 when it cannot be determined
3. All other field values are strings wrapped in double quotes
4. Make sure the JSON can be parsed by a standard JSON parser`

	// CompactJSONStructure describes the expected output in one line
	CompactJSONStructure = `Output strict JSON:
{"hasIssues":bool,"fileEvaluation":"str","issues":[{"description":"str","codeLine":int,"issueType":"error|warning|suggestion","severity":"high|medium|low","suggestedFix":"str","fixedCodeExample":"str","reason":"str"}]}
Rules: issues is empty when hasIssues is false; codeLine is -1 when unsure; the JSON must parse`
)
