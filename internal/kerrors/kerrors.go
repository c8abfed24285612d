// Package kerrors defines the stable error-code taxonomy shared by every
// Kiwibes component and the REST surface that exposes them.
package kerrors

import "net/http"

// Code is one of the stable public error codes. Zero is always success.
type Code int

const (
	NoError Code = iota
	CmdlineParse
	CmdlineInvLogLevel
	CmdlineInvLogMaxSize
	CmdlineInvDataStoreMaxSize
	CmdlineInvHome
	NoDatabaseFile
	JSONParseFail
	MainInterrupted
	JobNameUnknown
	JobNameTaken
	JobDescriptionInvalid
	EmptyRestRequest
	JobIsRunning
	JobIsNotRunning
	JobScheduleInvalid
	ProcessLaunchFailed
	DataKeyTaken
	DataKeyUnknown
	DataStoreFull
	AuthenticationFail
	HTTPSCertsFail
	ServerNotFound
)

var names = map[Code]string{
	NoError:                    "NO_ERROR",
	CmdlineParse:               "CMDLINE_PARSE",
	CmdlineInvLogLevel:         "CMDLINE_INV_LOG_LEVEL",
	CmdlineInvLogMaxSize:       "CMDLINE_INV_LOG_MAX_SIZE",
	CmdlineInvDataStoreMaxSize: "CMDLINE_INV_DATA_STORE_MAX_SIZE",
	CmdlineInvHome:             "CMDLINE_INV_HOME",
	NoDatabaseFile:             "NO_DATABASE_FILE",
	JSONParseFail:              "JSON_PARSE_FAIL",
	MainInterrupted:            "MAIN_INTERRUPTED",
	JobNameUnknown:             "JOB_NAME_UNKNOWN",
	JobNameTaken:               "JOB_NAME_TAKEN",
	JobDescriptionInvalid:      "JOB_DESCRIPTION_INVALID",
	EmptyRestRequest:           "EMPTY_REST_REQUEST",
	JobIsRunning:               "JOB_IS_RUNNING",
	JobIsNotRunning:            "JOB_IS_NOT_RUNNING",
	JobScheduleInvalid:         "JOB_SCHEDULE_INVALID",
	ProcessLaunchFailed:        "PROCESS_LAUNCH_FAILED",
	DataKeyTaken:               "DATA_KEY_TAKEN",
	DataKeyUnknown:             "DATA_KEY_UNKNOWN",
	DataStoreFull:              "DATA_STORE_FULL",
	AuthenticationFail:         "AUTHENTICATION_FAIL",
	HTTPSCertsFail:             "HTTPS_CERTS_FAIL",
	ServerNotFound:             "SERVER_NOT_FOUND",
}

// String implements fmt.Stringer, returning the public taxonomy name.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// HTTPStatus maps a code to the "modern" HTTP status column from the
// error taxonomy table: 400/403/404/409/507 rather than the legacy
// all-404 column. See the design notes for why this column was chosen.
func (c Code) HTTPStatus() int {
	switch c {
	case NoError:
		return http.StatusOK
	case JobNameUnknown, DataKeyUnknown, AuthenticationFail:
		return http.StatusNotFound
	case JobNameTaken, DataKeyTaken:
		return http.StatusConflict
	case JobDescriptionInvalid, EmptyRestRequest, JobScheduleInvalid:
		return http.StatusBadRequest
	case JobIsRunning, JobIsNotRunning:
		return http.StatusForbidden
	case ProcessLaunchFailed:
		return http.StatusInternalServerError
	case DataStoreFull:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// Err wraps a Code as an error, carrying a human-readable message.
type Err struct {
	Code    Code
	Message string
}

func (e *Err) Error() string {
	return e.Message
}

// New builds an *Err for the given code and message.
func New(code Code, message string) *Err {
	return &Err{Code: code, Message: message}
}

// As extracts the Code and message from an error produced by New, or
// returns (NoError, "", false) if err is not a *Err.
func As(err error) (Code, string, bool) {
	if err == nil {
		return NoError, "", false
	}
	if e, ok := err.(*Err); ok {
		return e.Code, e.Message, true
	}
	return NoError, "", false
}
