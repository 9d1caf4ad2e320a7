package gate

import "regexp"

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|api[_-]?key|secret|token)\s*[:=]\s*\S+`),
}

var sensitiveTopics = regexp.MustCompile(`(?i)\b(?:` +
	`passwords?|passwd|pwd|api[ _-]?keys?|apikeys?|secrets?|` +
	`(?:api|access|auth|bearer|refresh|session|github|slack|npm) tokens?|` +
	`credentials?|creds?|aws (?:access|secret|key)|account (?:id|number)s?|` +
	`private keys?|ssh keys?|social security|ssn|credit cards?|bank account|passport number` +
	`)\b`)

var emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Sensitive reports whether a question asks for credentials, secrets or
// personal identifiers.
func Sensitive(question string) bool {
	return sensitiveTopics.MatchString(question) || LeaksCredential(question)
}

// LeaksCredential reports whether text contains something shaped like a
// credential.
func LeaksCredential(text string) bool {
	for _, re := range credentialPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactEmails replaces email addresses with a placeholder.
func RedactEmails(text string) string {
	return emailRe.ReplaceAllString(text, "[redacted]")
}
