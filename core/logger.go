package core

// Logger is the app-wide logger.
// args may hold errors, extra data maps, and the acting user (reported as the person concerned).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
