package oracle

import "fmt"

// Error is a simulated Oracle error. Handlers print it verbatim; it is data,
// never a reason to abort the session.
type Error struct {
	Code string
	Text string
}

func (e *Error) Error() string { return e.Code + ": " + e.Text }

// Is matches on code so callers can compare against catalog entries.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(code, format string, args ...any) *Error {
	return &Error{Code: code, Text: fmt.Sprintf(format, args...)}
}

// Fixed catalog entries.
var (
	ErrInvalidLogon      = newErr("ORA-01017", "invalid username/password; logon denied")
	ErrAccountLocked     = newErr("ORA-28000", "The account is locked.")
	ErrNotAvailable      = newErr("ORA-01034", "ORACLE not available")
	ErrNoSharedMemory    = newErr("ORA-27101", "shared memory realm does not exist")
	ErrInsufficientPrivs = newErr("ORA-01031", "insufficient privileges")
	ErrInvalidSQL        = newErr("ORA-00900", "invalid SQL statement")
	ErrAlreadyRunning    = newErr("ORA-01081", "cannot start already-running ORACLE - shut it down first")
	ErrNotMounted        = newErr("ORA-01507", "database not mounted")
	ErrNotOpen           = newErr("ORA-01109", "database not open")
	ErrAlreadyMounted    = newErr("ORA-01100", "database already mounted")
	ErrAlreadyOpen       = newErr("ORA-01531", "a database already open by the instance")
	ErrMustBeMounted     = newErr("ORA-01126", "database must be mounted in this instance and not open in any instance")
	ErrNoArchivelog      = newErr("ORA-19602", "cannot backup or copy active file in NOARCHIVELOG mode")
	ErrBadPrivilege      = newErr("ORA-00990", "missing or invalid privilege")
	ErrBadService        = newErr("ORA-12162", "TNS:net service name is incorrectly specified")
	ErrFixedViewsOnly    = newErr("ORA-01219", "database or pluggable database not open: queries allowed on fixed tables or views only")
	ErrSysNeedsSysdba    = newErr("ORA-28009", "connection as SYS should be as SYSDBA or SYSOPER")
	ErrCircularGrant     = newErr("ORA-01934", "circular role grant detected")
	ErrNoListener        = newErr("TNS-12541", "TNS:no listener")
	ErrNotConnected      = newErr("SP2-0640", "Not connected")
	ErrInitInProgress    = newErr("ORA-01033", "ORACLE initialization or shutdown in progress")
	ErrNoTable           = newErr("ORA-00942", "table or view does not exist")
	ErrInvalidOption     = newErr("ORA-00922", "missing or invalid option")
	ErrDropAdmin         = newErr("ORA-28014", "cannot drop administrative user or role")
	ErrNoSuchSystemParam = newErr("ORA-02065", "illegal option for ALTER SYSTEM")
	ErrStaticParameter   = newErr("ORA-02095", "specified initialization parameter cannot be modified")
	ErrNeedResetlogs     = newErr("ORA-01589", "must use RESETLOGS or NORESETLOGS option for database open")
	ErrFlashbackOff      = newErr("ORA-38726", "Flashback database logging is not on.")
	ErrFlashbackOpen     = newErr("ORA-38757", "Database must be mounted and not open to FLASHBACK.")
	ErrNoMediaRecovery   = newErr("ORA-38707", "Media recovery is not enabled.")
	ErrUnresolved        = newErr("ORA-12154", "TNS:could not resolve the connect identifier specified")
	ErrUnknownService    = newErr("ORA-12514", "TNS:listener does not currently know of service requested in connect descriptor")
	ErrServiceBlocked    = newErr("ORA-12528", "TNS:listener: all appropriate instances are blocking new connections")
	ErrClientNoListener  = newErr("ORA-12541", "TNS:no listener")
	ErrMissingDatafile   = newErr("ORA-02199", "missing DATAFILE/TEMPFILE clause")
	ErrResetlogsInvalid  = newErr("ORA-01139", "RESETLOGS option only valid after an incomplete database recovery")
	ErrFlashbackLogging  = newErr("ORA-38706", "Cannot turn on FLASHBACK DATABASE logging.")
	ErrFlashbackEnabled  = newErr("ORA-38774", "cannot disable media recovery - flashback database is enabled")
	ErrGuaranteeMedia    = newErr("ORA-38785", "Media recovery must be enabled for guaranteed restore point.")
	ErrBadAlterDatabase  = newErr("ORA-02231", "missing or invalid option to ALTER DATABASE")
	ErrIntegerRequired   = newErr("ORA-02017", "integer value required")
	ErrFileExists        = newErr("ORA-27038", "created file already exists")
	ErrFileCreate        = newErr("ORA-27040", "file create error, unable to create file")
	ErrParameterFile     = newErr("ORA-01078", "failure in processing system parameters")
	ErrNotLoggedOn       = newErr("ORA-01012", "not logged on")
	ErrDivisorZero       = newErr("ORA-01476", "divisor is equal to zero")
)

// ErrInvalidIdentifier reports an unknown column.
func ErrInvalidIdentifier(name string) *Error {
	return newErr("ORA-00904", "%q: invalid identifier", name)
}

// ErrNoDatafile reports a datafile the dictionary does not know.
func ErrNoDatafile(path string) *Error {
	return newErr("ORA-01516", "nonexistent log file, data file, or temporary file %q", path)
}

// ErrRestorePointCreate heads the stack for a refused restore point.
func ErrRestorePointCreate(name string) *Error {
	return newErr("ORA-38784", "Cannot create restore point '%s'.", name)
}

// ErrNoObject is DESCRIBE's error for an unknown object.
func ErrNoObject(name string) *Error {
	return newErr("ORA-04043", "object %s does not exist", name)
}

// ErrCreateDatafile heads the stack for a datafile that could not be created.
func ErrCreateDatafile(path string) *Error {
	return newErr("ORA-01119", "error in creating database file '%s'", path)
}

// ErrNoSizeSpecified is returned for a new datafile without SIZE.
func ErrNoSizeSpecified(path string) *Error {
	return newErr("ORA-17610", "file '%s' does not exist and no size specified", path)
}

// ErrNoParameterFile follows ErrParameterFile when no spfile or pfile exists.
func ErrNoParameterFile(path string) *Error {
	return newErr("LRM-00109", "could not open parameter file '%s'", path)
}

func errUserConflict(name string) *Error {
	return newErr("ORA-01920", "user name '%s' conflicts with another user or role name", name)
}

func errRoleConflict(name string) *Error {
	return newErr("ORA-01921", "role name '%s' conflicts with another user or role name", name)
}

// ErrNoUser reports an unknown user.
func ErrNoUser(name string) *Error {
	return newErr("ORA-01918", "user '%s' does not exist", name)
}

// ErrNoRole reports an unknown role.
func ErrNoRole(name string) *Error {
	return newErr("ORA-01919", "role '%s' does not exist", name)
}

// ErrNoGrantee reports an unknown grant target.
func ErrNoGrantee(name string) *Error {
	return newErr("ORA-01917", "user or role '%s' does not exist", name)
}

// ErrNoCreateSession is returned when a user may not log on.
func ErrNoCreateSession(name string) *Error {
	return newErr("ORA-01045", "user %s lacks CREATE SESSION privilege; logon denied", name)
}

// ErrNoTablespace reports an unknown tablespace.
func ErrNoTablespace(name string) *Error {
	return newErr("ORA-00959", "tablespace '%s' does not exist", name)
}

func errTablespaceExists(name string) *Error {
	return newErr("ORA-01543", "tablespace '%s' already exists", name)
}

func errSystemTablespace() *Error {
	return newErr("ORA-01550", "cannot drop system tablespace")
}

func errRestorePointExists(name string) *Error {
	return newErr("ORA-38778", "Restore point '%s' already exists.", name)
}

// ErrNoRestorePoint reports an unknown restore point name.
func ErrNoRestorePoint(name string) *Error {
	return newErr("ORA-38780", "Restore point '%s' does not exist.", name)
}

func errRoleNotGranted(role, grantee string) *Error {
	return newErr("ORA-01951", "ROLE '%s' not granted to '%s'", role, grantee)
}

func errPrivNotGranted(grantee string) *Error {
	return newErr("ORA-01952", "system privileges not granted to '%s'", grantee)
}

// UnknownCommand renders the SQL*Plus error for an unrecognized line.
func UnknownCommand(line string) string {
	return fmt.Sprintf(`SP2-0734: unknown command beginning "%s..." - rest of line ignored.`, truncate(line, 10))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
