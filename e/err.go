package e

// W wraps the passed error using the full code (package code + call site id),
// as declared in the calling file's ECode constants
func W(err error, code string, debugMessages ...string) error {
	return Wrap(err, code[:4], code[4:], debugMessages...)
}

// N creates a new error based on the full code (package code + call site id)
// and message
func N(code, msg string) (err error) {
	return New(code[:4], code[4:], msg)
}
