// Package oracle models the simulated Oracle Database 19c installation: the
// flags that gate every Oracle command, the user/role dictionary, storage
// objects, backups and the checkpoint-based progress of the exercise.
package oracle

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"orasim/internal/logging"
	"orasim/internal/metrics"
	"orasim/internal/store"
)

// Mode is the instance state.
type Mode string

const (
	ModeShutdown Mode = "SHUTDOWN"
	ModeNoMount  Mode = "NOMOUNT"
	ModeMounted  Mode = "MOUNTED"
	ModeOpen     Mode = "OPEN"
)

// Set is a set of upper-case names.
type Set map[string]bool

func (s Set) Has(name string) bool { return s[name] }

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k, v := range s {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func newSet(items ...string) Set {
	s := make(Set, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

// PSAppRequirements tracks the ArcGIS geodatabase integration checkpoints.
type PSAppRequirements struct {
	SDETablespace bool `json:"sdeTablespace"`
	SDEUser       bool `json:"sdeUser"`
	STShapeLib    bool `json:"stShapeLib"`
	OpenCursors   bool `json:"openCursors"`
}

// UserRecord is a database user or role. Users and roles share one namespace.
// Users hold direct system privileges in Privileges; roles hold theirs in
// GrantedPrivileges.
type UserRecord struct {
	Password          string `json:"password"`
	Privileges        Set    `json:"privileges"`
	Locked            bool   `json:"locked"`
	Created           bool   `json:"created"`
	IsRole            bool   `json:"isRole,omitempty"`
	GrantedRoles      Set    `json:"grantedRoles,omitempty"`
	GrantedPrivileges Set    `json:"grantedPrivileges,omitempty"`
	DefaultTablespace string `json:"defaultTablespace,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
}

// Tablespace is a simulated tablespace with one datafile.
type Tablespace struct {
	Datafile   string `json:"datafile"`
	Size       string `json:"size"`
	Autoextend bool   `json:"autoextend"`
	Contents   string `json:"contents"`
	Status     string `json:"status"`
	Created    bool   `json:"created"`
	Order      int    `json:"order"`
}

// RestorePoint is a named SCN.
type RestorePoint struct {
	SCN       int64  `json:"scn"`
	Time      string `json:"time"`
	Guarantee bool   `json:"guarantee"`
}

// BackupRecord is one RMAN backup set.
type BackupRecord struct {
	Key        int    `json:"key"`
	Type       string `json:"type"`
	Level      int    `json:"level"`
	Compressed bool   `json:"compressed"`
	SizeBytes  int64  `json:"sizeBytes"`
	Elapsed    string `json:"elapsed"`
	Completed  string `json:"completed"`
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	SCN        int64  `json:"scn"`
}

// Snapshot is the persisted Oracle state blob.
type Snapshot struct {
	SoftwareInstalled   bool                    `json:"softwareInstalled"`
	InventoryCreated    bool                    `json:"inventoryCreated"`
	OrainstRootRun      bool                    `json:"orainstRootRun"`
	RootShRun           bool                    `json:"rootShRun"`
	DatabaseCreated     bool                    `json:"databaseCreated"`
	DatabaseStarted     bool                    `json:"databaseStarted"`
	DatabaseMode        Mode                    `json:"databaseMode"`
	DatabaseName        string                  `json:"databaseName"`
	ArchivelogMode      bool                    `json:"archivelogMode"`
	FlashbackOn         bool                    `json:"flashbackOn"`
	ListenerConfigured  bool                    `json:"listenerConfigured"`
	ListenerStarted     bool                    `json:"listenerStarted"`
	ListenerPort        int                     `json:"listenerPort"`
	KernelParametersSet bool                    `json:"kernelParametersSet"`
	ResourceLimitsSet   bool                    `json:"resourceLimitsSet"`
	OratabValidated     bool                    `json:"oratabValidated"`
	FirewallConfigured  bool                    `json:"firewallConfigured"`
	SELinuxPermissive   bool                    `json:"selinuxPermissive"`
	EnvironmentSet      bool                    `json:"environmentSet"`
	Packages            map[string]bool         `json:"packages"`
	PSApp               PSAppRequirements       `json:"psAppRequirements"`
	DatabaseUsers       map[string]*UserRecord  `json:"databaseUsers"`
	Tablespaces         map[string]*Tablespace  `json:"tablespaces"`
	RestorePoints       map[string]RestorePoint `json:"restorePoints"`
	RMANBackups         []BackupRecord          `json:"rmanBackups"`
	Parameters          map[string]string       `json:"parameters"`
	NextBackupKey       int                     `json:"nextBackupKey"`
	CurrentSCN          int64                   `json:"currentScn"`
}

// Options configures the simulated installation layout.
type Options struct {
	Store        store.BlobStore
	Clock        func() time.Time
	SID          string
	OracleBase   string
	OracleHome   string
	ListenerPort int
}

// State is the Oracle installation of one session. The embedded Snapshot is
// what persists; handlers may set its flags directly and call Save.
type State struct {
	*Snapshot

	SID         string
	OracleBase  string
	OracleHome  string
	defaultPort int
	store       store.BlobStore
	clock       func() time.Time
	seen        map[string]bool
}

// New loads the Oracle blob or starts from the baseline.
func New(opts Options) *State {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SID == "" {
		opts.SID = "ORCL"
	}
	if opts.OracleBase == "" {
		opts.OracleBase = "/u01/app/oracle"
	}
	if opts.OracleHome == "" {
		opts.OracleHome = opts.OracleBase + "/product/19.0.0/dbhome_1"
	}
	if opts.ListenerPort == 0 {
		opts.ListenerPort = 1521
	}
	s := &State{
		SID:         opts.SID,
		OracleBase:  opts.OracleBase,
		OracleHome:  opts.OracleHome,
		defaultPort: opts.ListenerPort,
		store:       opts.Store,
		clock:       opts.Clock,
	}
	if !s.load() {
		s.Snapshot = s.baseline()
	}
	return s
}

func (s *State) load() bool {
	if s.store == nil {
		return false
	}
	data, err := s.store.Get(store.KeyOracle)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Get(logging.CategoryOracle).Warn("failed to read oracle blob: %v", err)
		}
		return false
	}
	snap := s.baseline()
	if err := json.Unmarshal(data, snap); err != nil {
		logging.Get(logging.CategoryOracle).Warn("discarding unreadable oracle blob: %v", err)
		return false
	}
	s.Snapshot = snap
	s.normalize()
	logging.Oracle("loaded oracle state (%d bytes), mode=%s", len(data), s.DatabaseMode)
	return true
}

// normalize fills maps a hand-edited or older blob may lack.
func (s *State) normalize() {
	if s.Packages == nil {
		s.Packages = map[string]bool{}
	}
	if s.DatabaseUsers == nil {
		s.DatabaseUsers = map[string]*UserRecord{}
	}
	if s.Tablespaces == nil {
		s.Tablespaces = map[string]*Tablespace{}
	}
	if s.RestorePoints == nil {
		s.RestorePoints = map[string]RestorePoint{}
	}
	if s.Parameters == nil {
		s.Parameters = map[string]string{}
	}
	if s.DatabaseMode == "" {
		s.DatabaseMode = ModeShutdown
	}
	if s.NextBackupKey < 1 {
		s.NextBackupKey = 1
	}
	for _, u := range s.DatabaseUsers {
		if u.Privileges == nil {
			u.Privileges = Set{}
		}
		if u.GrantedRoles == nil {
			u.GrantedRoles = Set{}
		}
		if u.GrantedPrivileges == nil {
			u.GrantedPrivileges = Set{}
		}
	}
}

func (s *State) baseline() *Snapshot {
	now := s.clock().Format(isoLayout)
	user := func(pw string, locked bool, privs ...string) *UserRecord {
		return &UserRecord{
			Password:          pw,
			Privileges:        newSet(privs...),
			Locked:            locked,
			Created:           true,
			GrantedRoles:      Set{},
			GrantedPrivileges: Set{},
			DefaultTablespace: "SYSTEM",
			CreatedAt:         now,
		}
	}
	role := func(privs ...string) *UserRecord {
		return &UserRecord{
			Privileges:        Set{},
			Created:           true,
			IsRole:            true,
			GrantedRoles:      Set{},
			GrantedPrivileges: newSet(privs...),
			CreatedAt:         now,
		}
	}
	sys := user("oracle", false, "SYSDBA", "SYSOPER")
	sys.GrantedRoles = newSet("DBA")
	system := user("oracle", false)
	system.GrantedRoles = newSet("DBA")
	scott := user("tiger", false)
	scott.GrantedRoles = newSet("CONNECT", "RESOURCE")
	scott.DefaultTablespace = "USERS"

	ts := func(order int, file, size, contents string) *Tablespace {
		return &Tablespace{
			Datafile:   s.OracleBase + "/oradata/" + s.SID + "/" + file,
			Size:       size,
			Autoextend: true,
			Contents:   contents,
			Status:     "ONLINE",
			Created:    true,
			Order:      order,
		}
	}

	return &Snapshot{
		DatabaseMode:  ModeShutdown,
		ListenerPort:  s.defaultPort,
		Packages:      map[string]bool{},
		RestorePoints: map[string]RestorePoint{},
		DatabaseUsers: map[string]*UserRecord{
			"SYS":      sys,
			"SYSTEM":   system,
			"DBSNMP":   user("dbsnmp", true),
			"SCOTT":    scott,
			"PUBLIC":   role(),
			"CONNECT":  role("CREATE SESSION"),
			"RESOURCE": role("CREATE TABLE", "CREATE SEQUENCE", "CREATE PROCEDURE", "CREATE TRIGGER", "CREATE TYPE"),
			"DBA":      role(),
		},
		Tablespaces: map[string]*Tablespace{
			"SYSTEM":   ts(1, "system01.dbf", "910M", "PERMANENT"),
			"SYSAUX":   ts(2, "sysaux01.dbf", "550M", "PERMANENT"),
			"UNDOTBS1": ts(3, "undotbs01.dbf", "340M", "UNDO"),
			"TEMP":     ts(4, "temp01.dbf", "32M", "TEMPORARY"),
			"USERS":    ts(5, "users01.dbf", "5M", "PERMANENT"),
		},
		Parameters: map[string]string{
			"open_cursors": "300",
			"processes":    "300",
		},
		NextBackupKey: 1,
		CurrentSCN:    2145832,
	}
}

// Reset restores the baseline and persists it.
func (s *State) Reset() {
	s.Snapshot = s.baseline()
	s.seen = nil
	s.Save()
	logging.Oracle("oracle state reset to baseline")
}

// Save persists the snapshot. Failures are logged and otherwise ignored.
func (s *State) Save() {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(s.Snapshot)
	if err == nil {
		err = s.store.Set(store.KeyOracle, data)
	}
	if err != nil {
		logging.Get(logging.CategoryOracle).Error("failed to persist oracle state: %v", err)
		metrics.RecordPersistFailure(store.KeyOracle)
		logging.Audit(logging.AuditEvent{Type: logging.AuditPersistFail, Fields: map[string]interface{}{"key": store.KeyOracle}})
		return
	}
	logging.OracleDebug("persisted oracle state (%d bytes)", len(data))
}

// Now returns the injected clock's time.
func (s *State) Now() time.Time { return s.clock() }

// NextSCN advances and returns the system change number.
func (s *State) NextSCN() int64 {
	s.CurrentSCN += 1024
	return s.CurrentSCN
}

// SetMode changes the instance state. Any mode other than SHUTDOWN means the
// instance is started.
func (s *State) SetMode(m Mode) {
	s.DatabaseMode = m
	s.DatabaseStarted = m != ModeShutdown
	if m == ModeOpen {
		s.NextSCN()
	}
	s.Save()
	logging.Oracle("database mode -> %s", m)
}

// IsOpen reports whether the database is open.
func (s *State) IsOpen() bool { return s.DatabaseStarted && s.DatabaseMode == ModeOpen }

// DBName returns the database name, defaulting to the SID.
func (s *State) DBName() string {
	if s.DatabaseName != "" {
		return s.DatabaseName
	}
	return s.SID
}

// SetParameter sets an initialization parameter.
func (s *State) SetParameter(name, value string) {
	s.Parameters[lower(name)] = value
	s.refreshDictionaryChecks()
	s.Save()
}

// Parameter returns an initialization parameter.
func (s *State) Parameter(name string) (string, bool) {
	v, ok := s.Parameters[lower(name)]
	return v, ok
}

// MarkPackageInstalled records a package install.
func (s *State) MarkPackageInstalled(name string) {
	s.Packages[name] = true
	s.Save()
}

// PackageInstalled reports whether a package was installed.
func (s *State) PackageInstalled(name string) bool { return s.Packages[name] }

const isoLayout = "2006-01-02T15:04:05"
