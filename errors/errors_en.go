package errors

const (
	UnknownInternalServerError = "01: Unknown Internal Server Error"
	Unauthorized               = "02: Unauthorized"
	Unavailable                = "03: Service Unavailable"
)
