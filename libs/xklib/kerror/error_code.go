package kerror

type ErrorCode string

var (
	httpErrorCodeMap = createMapHttpErrorCode()
)

const (
	EC_OK                ErrorCode = "OK"
	EC_UNKNOWN           ErrorCode = "UNKNOWN"
	EC_NOT_FOUND         ErrorCode = "NOT_FOUND"
	EC_INVALID_PARAMETER ErrorCode = "INVALID_PARAMETER"
	EC_CONFLICT          ErrorCode = "CONFLICT"
	EC_INTERNAL_ERROR    ErrorCode = "INTERNAL_ERROR"
	EC_UNIMPLEMENTED     ErrorCode = "UNIMPLEMENTED"
	EC_TIMEOUT           ErrorCode = "TIMEOUT"
	EC_NETWORK_ERR       ErrorCode = "NETWORK_ERR"
	EC_RETRYABLE         ErrorCode = "RETRYABLE"
	EC_UNAVAILABLE       ErrorCode = "UNAVAILABLE" // actor stopped or mailbox full
)

func (code ErrorCode) String() string {
	return string(code)
}

func (ec ErrorCode) ToHttpErrorCode() int {
	code, ok := httpErrorCodeMap[ec]
	if ok {
		return code
	}
	return 503
}

func createMapHttpErrorCode() map[ErrorCode]int {
	return map[ErrorCode]int{
		EC_OK:                200,
		EC_UNKNOWN:           500,
		EC_NOT_FOUND:         404,
		EC_INVALID_PARAMETER: 400,
		EC_CONFLICT:          409,
		EC_INTERNAL_ERROR:    503,
		EC_UNIMPLEMENTED:     501,
		EC_TIMEOUT:           408,
		EC_NETWORK_ERR:       504,
		EC_RETRYABLE:         429,
		EC_UNAVAILABLE:       503,
	}
}
