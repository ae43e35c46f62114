package oracle

import (
	"strings"

	"orasim/internal/logging"
)

// FileSource reads simulated files. *vfs.FS satisfies it.
type FileSource interface {
	ReadFile(path string) (string, bool)
}

// Prerequisite names accepted by CheckPrerequisites.
const (
	ReqSoftware         = "software"
	ReqDatabase         = "database"
	ReqListener         = "listener"
	ReqRunningDatabase  = "running_database"
	ReqRunningListener  = "running_listener"
	ReqAllPackages      = "all_packages"
	ReqKernelParameters = "kernel_parameters"
	ReqResourceLimits   = "resource_limits"
)

// RequiredPackages are the RPMs Oracle 19c needs on RHEL9.
var RequiredPackages = []string{
	"bc", "binutils", "compat-openssl11", "elfutils-libelf", "fontconfig",
	"glibc", "glibc-devel", "ksh", "libaio", "libasan", "liblsan", "libX11",
	"libXau", "libXi", "libXrender", "libXtst", "libxcrypt-compat", "libgcc",
	"libibverbs", "libnsl", "librdmacm", "libstdc++", "libxcb", "libvirt-libs",
	"make", "policycoreutils", "policycoreutils-python-utils", "smartmontools",
	"sysstat",
}

// KernelParameter is one required sysctl setting.
type KernelParameter struct {
	Key   string
	Value string
}

// RequiredKernelParameters must appear in the sysctl configuration with
// exactly these values (whitespace collapsed).
var RequiredKernelParameters = []KernelParameter{
	{"fs.file-max", "6815744"},
	{"kernel.sem", "250 32000 100 128"},
	{"kernel.shmmni", "4096"},
	{"kernel.shmall", "1073741824"},
	{"kernel.shmmax", "4398046511104"},
	{"kernel.panic_on_oops", "1"},
	{"net.core.rmem_default", "262144"},
	{"net.core.rmem_max", "4194304"},
	{"net.core.wmem_default", "262144"},
	{"net.core.wmem_max", "1048576"},
	{"net.ipv4.conf.all.rp_filter", "2"},
	{"net.ipv4.conf.default.rp_filter", "2"},
	{"fs.aio-max-nr", "1048576"},
	{"net.ipv4.ip_local_port_range", "9000 65500"},
}

// ResourceLimit is one required limits.conf entry for the oracle user.
type ResourceLimit struct {
	Type  string // soft or hard
	Item  string
	Value string
}

// RequiredResourceLimits must be configured for the oracle user.
var RequiredResourceLimits = []ResourceLimit{
	{"soft", "nofile", "1024"},
	{"hard", "nofile", "65536"},
	{"soft", "nproc", "16384"},
	{"hard", "nproc", "16384"},
	{"soft", "stack", "10240"},
	{"hard", "stack", "32768"},
	{"hard", "memlock", "134217728"},
	{"soft", "memlock", "134217728"},
}

// Files read when re-deriving kernel and limits configuration. Later files
// override earlier ones.
var (
	SysctlFiles = []string{
		"/etc/sysctl.conf",
		"/etc/sysctl.d/99-oracle-database-preinstall-19c-sysctl.conf",
	}
	LimitsFiles = []string{
		"/etc/security/limits.conf",
		"/etc/security/limits.d/oracle-database-preinstall-19c.conf",
	}
)

// CheckPrerequisites evaluates a named requirement. Kernel parameters and
// resource limits are re-derived from the files so hand edits are honored;
// the stored flag follows the files. Unknown names are never satisfied.
func (s *State) CheckPrerequisites(req string, src FileSource) bool {
	switch req {
	case ReqSoftware:
		return s.SoftwareInstalled
	case ReqDatabase:
		return s.DatabaseCreated
	case ReqListener:
		return s.ListenerConfigured
	case ReqRunningDatabase:
		return s.DatabaseCreated && s.DatabaseStarted
	case ReqRunningListener:
		return s.ListenerConfigured && s.ListenerStarted
	case ReqAllPackages:
		return len(s.MissingPackages()) == 0
	case ReqKernelParameters:
		ok := len(MissingKernelParameters(src)) == 0
		s.syncFlag(&s.KernelParametersSet, ok)
		return ok
	case ReqResourceLimits:
		ok := len(MissingResourceLimits(src)) == 0
		s.syncFlag(&s.ResourceLimitsSet, ok)
		return ok
	}
	logging.OracleDebug("unknown prerequisite %q", req)
	return false
}

func (s *State) syncFlag(flag *bool, v bool) {
	if *flag != v {
		*flag = v
		s.Save()
	}
}

// MissingPackages returns required packages not yet installed.
func (s *State) MissingPackages() []string {
	var out []string
	for _, p := range RequiredPackages {
		if !s.Packages[p] {
			out = append(out, p)
		}
	}
	return out
}

func concatFiles(src FileSource, paths []string) string {
	if src == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range paths {
		if c, ok := src.ReadFile(p); ok {
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ParseSysctl parses "key = value" lines. Comments and blank lines are
// skipped; values have whitespace collapsed; later keys win.
func ParseSysctl(content string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Join(strings.Fields(v), " ")
	}
	return out
}

// MissingKernelParameters returns the keys whose configured value differs
// from the required one.
func MissingKernelParameters(src FileSource) []string {
	got := ParseSysctl(concatFiles(src, SysctlFiles))
	var out []string
	for _, p := range RequiredKernelParameters {
		if got[p.Key] != p.Value {
			out = append(out, p.Key)
		}
	}
	return out
}

// ParseLimits returns "domain type item" -> value from limits.conf content.
func ParseLimits(content string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if len(f) != 4 {
			continue
		}
		out[f[0]+" "+f[1]+" "+f[2]] = f[3]
	}
	return out
}

// MissingResourceLimits returns the oracle limits not configured as required.
func MissingResourceLimits(src FileSource) []string {
	got := ParseLimits(concatFiles(src, LimitsFiles))
	var out []string
	for _, l := range RequiredResourceLimits {
		if got["oracle "+l.Type+" "+l.Item] != l.Value {
			out = append(out, l.Type+" "+l.Item)
		}
	}
	return out
}
