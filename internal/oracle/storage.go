package oracle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TablespaceSpec describes a CREATE TABLESPACE.
type TablespaceSpec struct {
	Name       string
	Datafile   string
	Size       string
	Autoextend bool
	Contents   string // PERMANENT, TEMPORARY or UNDO
}

var systemTablespaces = newSet("SYSTEM", "SYSAUX")

// CreateTablespace adds a tablespace.
func (s *State) CreateTablespace(spec TablespaceSpec) error {
	key := upper(spec.Name)
	if _, ok := s.Tablespace(key); ok {
		return errTablespaceExists(key)
	}
	if spec.Contents == "" {
		spec.Contents = "PERMANENT"
	}
	order := 0
	for _, t := range s.Tablespaces {
		if t.Order > order {
			order = t.Order
		}
	}
	s.Tablespaces[key] = &Tablespace{
		Datafile:   spec.Datafile,
		Size:       spec.Size,
		Autoextend: spec.Autoextend,
		Contents:   spec.Contents,
		Status:     "ONLINE",
		Created:    true,
		Order:      order + 1,
	}
	s.afterDictionaryChange()
	return nil
}

// DropTablespace soft-deletes a tablespace.
func (s *State) DropTablespace(name string) error {
	key := upper(name)
	t, ok := s.Tablespace(key)
	if !ok {
		return ErrNoTablespace(key)
	}
	if systemTablespaces.Has(key) {
		return errSystemTablespace()
	}
	t.Created = false
	s.afterDictionaryChange()
	return nil
}

// Tablespace returns a live tablespace.
func (s *State) Tablespace(name string) (*Tablespace, bool) {
	t, ok := s.Tablespaces[upper(name)]
	if !ok || !t.Created {
		return nil, false
	}
	return t, true
}

// TablespaceNames returns live tablespaces in creation order.
func (s *State) TablespaceNames() []string {
	var out []string
	for k, t := range s.Tablespaces {
		if t.Created {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.Tablespaces[out[i]].Order < s.Tablespaces[out[j]].Order
	})
	return out
}

// Backup types recorded by RMAN.
const (
	BackupFull       = "DB FULL"
	BackupIncr       = "DB INCR"
	BackupArchivelog = "ARCHIVELOG"
	BackupControl    = "CONTROLFILE"
)

// AddBackup appends a backup set with a monotonically increasing key. A
// negative level means the backup is not incremental. Size and elapsed time
// are synthesized deterministically from the type and key.
func (s *State) AddBackup(kind string, level int, compressed bool) BackupRecord {
	key := s.NextBackupKey
	s.NextBackupKey++

	var size int64
	switch kind {
	case BackupFull:
		size = 1_185_939_456
	case BackupIncr:
		size = 67_108_864
		if level == 0 {
			size = 1_185_939_456
		}
	case BackupArchivelog:
		size = 48_758_784
	default:
		size = 10_944_512
	}
	size += int64(key) * 1_048_576
	if compressed {
		size /= 5
	}
	// Roughly 60MB/s to disk, at least one second.
	secs := size/(60*1024*1024) + 1

	now := s.clock()
	rec := BackupRecord{
		Key:        key,
		Type:       kind,
		Level:      level,
		Compressed: compressed,
		SizeBytes:  size,
		Elapsed:    formatElapsed(time.Duration(secs) * time.Second),
		Completed:  now.Format(isoLayout),
		Tag:        "TAG" + now.Format("20060102T150405"),
		Status:     "AVAILABLE",
		SCN:        s.NextSCN(),
	}
	s.RMANBackups = append(s.RMANBackups, rec)
	s.Save()
	return rec
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// CreateRestorePoint records the current SCN under name.
func (s *State) CreateRestorePoint(name string, guarantee bool) (RestorePoint, error) {
	key := upper(name)
	if _, exists := s.RestorePoints[key]; exists {
		return RestorePoint{}, errRestorePointExists(key)
	}
	rp := RestorePoint{
		SCN:       s.NextSCN(),
		Time:      s.clock().Format(isoLayout),
		Guarantee: guarantee,
	}
	s.RestorePoints[key] = rp
	s.Save()
	return rp, nil
}

// DropRestorePoint removes a restore point.
func (s *State) DropRestorePoint(name string) error {
	key := upper(name)
	if _, exists := s.RestorePoints[key]; !exists {
		return ErrNoRestorePoint(key)
	}
	delete(s.RestorePoints, key)
	s.Save()
	return nil
}

// RestorePoint returns a named restore point.
func (s *State) RestorePoint(name string) (RestorePoint, bool) {
	rp, ok := s.RestorePoints[upper(name)]
	return rp, ok
}

// RestorePointNames returns restore point names in SCN order.
func (s *State) RestorePointNames() []string {
	out := make([]string, 0, len(s.RestorePoints))
	for k := range s.RestorePoints {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.RestorePoints[out[i]].SCN < s.RestorePoints[out[j]].SCN
	})
	return out
}

// FormatOracleTime renders an ISO timestamp the way SQL*Plus prints a
// TIMESTAMP column.
func FormatOracleTime(iso string) string {
	t, err := time.Parse(isoLayout, iso)
	if err != nil {
		return iso
	}
	return strings.ToUpper(t.Format("02-Jan-06 03.04.05.000000000 PM"))
}

// FormatOracleDate renders an ISO timestamp as a DD-MON-YY DATE column.
func FormatOracleDate(iso string) string {
	t, err := time.Parse(isoLayout, iso)
	if err != nil {
		return iso
	}
	return strings.ToUpper(t.Format("02-Jan-06"))
}

// OpenCursors returns the open_cursors parameter as an integer.
func (s *State) OpenCursors() int {
	v, _ := s.Parameter("open_cursors")
	n, _ := strconv.Atoi(v)
	return n
}

// refreshDictionaryChecks updates the geodatabase checkpoints that derive
// from the data dictionary.
func (s *State) refreshDictionaryChecks() {
	_, s.PSApp.SDETablespace = s.Tablespace("SDE")
	s.PSApp.SDEUser = false
	if _, ok := s.User("SDE"); ok {
		s.PSApp.SDEUser = true
		for _, p := range GeodatabasePrivileges {
			if !s.HasPrivilege("SDE", p) {
				s.PSApp.SDEUser = false
				break
			}
		}
	}
	s.PSApp.OpenCursors = s.OpenCursors() >= 4000
}
