package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// RedactProfileURL masks the member slug of a LinkedIn profile URL.
// "https://linkedin.com/in/jane-doe-123" → "https://linkedin.com/in/ja***"
func RedactProfileURL(url string) string {
	idx := strings.Index(url, "/in/")
	if idx < 0 {
		return url
	}
	slug := url[idx+4:]
	if len(slug) > 2 {
		slug = slug[:2] + "***"
	} else if slug != "" {
		slug = "***"
	}
	return url[:idx+4] + slug
}
