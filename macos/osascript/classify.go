package osascript

import "regexp"

// FailureClass is the classification of an osascript failure.
type FailureClass string

const (
	// ClassPermission indicates automation or host-app access was refused.
	// Never retried.
	ClassPermission FailureClass = "permission"
	// ClassTransient indicates a failure worth retrying (timeouts, dropped
	// Apple Event connections).
	ClassTransient FailureClass = "transient"
	// ClassFatal indicates everything else; the raw stderr is surfaced.
	ClassFatal FailureClass = "fatal"
)

type classRule struct {
	pattern *regexp.Regexp
	class   FailureClass
}

// transientRules match failures that an immediate retry can plausibly fix.
// Error -1712 is the Apple Event timeout code, -609 the dropped-connection
// code.
var transientRules = []classRule{
	{regexp.MustCompile(`(?i)timed out`), ClassTransient},
	{regexp.MustCompile(`(?i)connection is invalid`), ClassTransient},
	{regexp.MustCompile(`(?i)broken pipe`), ClassTransient},
	{regexp.MustCompile(`(?i)did not respond`), ClassTransient},
	{regexp.MustCompile(`-1712`), ClassTransient},
	{regexp.MustCompile(`-609\b`), ClassTransient},
}

// defaultPermissionRules match the stderr osascript produces when automation
// consent is missing. Error -1743 is errAEEventNotPermitted, -10004 a
// privilege violation.
var defaultPermissionRules = []classRule{
	{regexp.MustCompile(`(?i)not auth(?:orized|orised) to send apple events`), ClassPermission},
	{regexp.MustCompile(`(?i)assistive access`), ClassPermission},
	{regexp.MustCompile(`-1743`), ClassPermission},
	{regexp.MustCompile(`-10004`), ClassPermission},
	{regexp.MustCompile(`(?i)permission denied`), ClassPermission},
	{regexp.MustCompile(`(?i)operation not permitted`), ClassPermission},
	{regexp.MustCompile(`(?i)access (?:was |is )?denied`), ClassPermission},
}

// permissionRulesByApp layers app-specific refusal text over the defaults.
// Each app's privacy pane produces slightly different wording when the user
// has toggled access off.
var permissionRulesByApp = map[string][]classRule{
	"Contacts": {
		{regexp.MustCompile(`(?i)contacts.*(privacy|access)`), ClassPermission},
		{regexp.MustCompile(`(?i)application isn.t running`), ClassPermission},
	},
	"Messages": {
		{regexp.MustCompile(`(?i)messages.*(privacy|access)`), ClassPermission},
	},
	"Calendar": {
		{regexp.MustCompile(`(?i)calendar.*(privacy|access)`), ClassPermission},
	},
	"Notes": {
		{regexp.MustCompile(`(?i)notes.*(privacy|access)`), ClassPermission},
	},
	"Reminders": {
		{regexp.MustCompile(`(?i)reminders.*(privacy|access)`), ClassPermission},
	},
}

// Classify maps stderr text from a failed osascript run to a failure class.
// Rules are evaluated in priority order: app-specific permission patterns,
// default permission patterns, then transient patterns. Unmatched text is
// ClassFatal.
func Classify(app string, stderr string) FailureClass {
	for _, rule := range permissionRulesByApp[app] {
		if rule.pattern.MatchString(stderr) {
			return rule.class
		}
	}
	for _, rule := range defaultPermissionRules {
		if rule.pattern.MatchString(stderr) {
			return rule.class
		}
	}
	for _, rule := range transientRules {
		if rule.pattern.MatchString(stderr) {
			return rule.class
		}
	}
	return ClassFatal
}
