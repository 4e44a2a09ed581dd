package apperrors

// Exit codes used by the CLI for each error kind.
const (
	ExitGeneric    = 1
	ExitInvalid    = 2
	ExitConnection = 3
	ExitNotFound   = 4
	ExitConflict   = 5
	ExitProtected  = 6
)

// ErrCMAS is the root of every error kind below.
var ErrCMAS Error = New("cmas operation failed").SetExitCode(ExitGeneric)

// Error kinds. Packages derive their own sentinels from these with New so that
// callers can branch with errors.Is on the kind alone.
var (
	ErrConnection           Error = ErrCMAS.New("connection failed").SetExitCode(ExitConnection)
	ErrNotConnected         Error = ErrConnection.New("not connected to a site server").SetExitCode(ExitConnection)
	ErrNotFound             Error = ErrCMAS.New("resource not found").SetExitCode(ExitNotFound)
	ErrAmbiguousResource    Error = ErrCMAS.New("resource name is ambiguous").SetExitCode(ExitConflict)
	ErrAlreadyExists        Error = ErrCMAS.New("resource already exists").SetExitCode(ExitConflict)
	ErrInvalidArgument      Error = ErrCMAS.New("invalid argument").SetExitCode(ExitInvalid)
	ErrProtectedResource    Error = ErrCMAS.New("protected collection").SetExitCode(ExitProtected)
	ErrConfirmationRequired Error = ErrCMAS.New("confirmation required").SetExitCode(ExitInvalid)
)
