// Package mail gives read and send access to a mailbox over IMAP and SMTP.
//
// Authentication uses an app password from the environment; server addresses
// default to Gmail and can be overridden for other providers. The package
// deliberately knows nothing about contact resolution: callers that want
// "mail from Jane" resolve the name to email addresses first and pass them
// in the From filter.
package mail
