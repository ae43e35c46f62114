// Package system implements the Linux side of the simulator: coreutils-style
// file and text commands, account management, packages and services. State
// lives in the session's filesystem wherever a real RHEL host keeps it
// (/etc/passwd, /etc/firewalld, /proc/sys ...), so that commands agree with
// each other and with what cat shows.
package system

import (
	"strings"

	"github.com/dustin/go-humanize"

	"orasim/internal/modal"
	"orasim/internal/shell"
)

// Table returns every system command.
func Table() shell.Table {
	t := shell.Table{
		// files
		"ls":    cmdLs,
		"cd":    cmdCd,
		"pwd":   cmdPwd,
		"mkdir": cmdMkdir,
		"touch": cmdTouch,
		"rm":    cmdRm,
		"rmdir": cmdRmdir,
		"cat":   cmdCat,
		"echo":  cmdEcho,
		"cp":    cmdCp,
		"mv":    cmdMv,
		"chmod": cmdChmod,
		"chown": cmdChown,
		"chgrp": cmdChgrp,
		"which": cmdWhich,
		"unzip": cmdUnzip,
		"tee":   cmdTee,

		// text
		"grep": cmdGrep,
		"head": cmdHead,
		"tail": cmdTail,
		"wc":   cmdWc,
		"sort": cmdSort,
		"uniq": cmdUniq,
		"diff": cmdDiff,

		// host info
		"hostname": cmdHostname,
		"uname":    cmdUname,
		"date":     cmdDate,
		"uptime":   cmdUptime,
		"df":       cmdDf,
		"free":     cmdFree,
		"ps":       cmdPs,
		"whoami":   cmdWhoami,
		"id":       cmdID,
		"groups":   cmdGroups,
		"clear":    cmdClear,
		"history":  cmdHistory,

		// accounts and sessions
		"useradd":  cmdUseradd,
		"groupadd": cmdGroupadd,
		"usermod":  cmdUsermod,
		"passwd":   cmdPasswd,
		"su":       cmdSu,
		"sudo":     cmdSudo,
		"exit":     cmdExit,
		"logout":   cmdExit,

		// environment
		"env":      cmdEnv,
		"printenv": cmdPrintenv,
		"set":      cmdSet,
		"unset":    cmdUnset,
		"export":   cmdExport,
		"source":   cmdSource,
		".":        cmdSource,

		// packages and services
		"yum":          cmdYum,
		"dnf":          cmdYum,
		"rpm":          cmdRpm,
		"systemctl":    cmdSystemctl,
		"firewall-cmd": cmdFirewall,
		"setenforce":   cmdSetenforce,
		"getenforce":   cmdGetenforce,
		"sysctl":       cmdSysctl,
	}
	return t
}

// Register adds the system table and its package catalog to r.
func Register(r *shell.Registry) {
	r.RegisterTable(Table())
	CatalogOf(r)
}

// sbin holds commands that live in /usr/sbin on RHEL.
var sbin = map[string]bool{
	"useradd": true, "groupadd": true, "usermod": true, "sysctl": true,
	"setenforce": true, "getenforce": true,
}

// binDir returns where a system command is installed.
func binDir(name string) string {
	if sbin[name] {
		return "/usr/sbin"
	}
	return "/usr/bin"
}

// mustBeRoot prints the standard refusal for privileged commands.
func mustBeRoot(s *shell.Session, msg string) bool {
	if s.Env.User() == "root" {
		return true
	}
	s.Error(msg)
	return false
}

// askPassword reads one masked line and hands it to fn.
func askPassword(s *shell.Session, prompt string, fn func(pw string)) {
	modal.Ask(s.Modal, prompt, true, fn)
}

// askLine reads one visible line and hands it to fn.
func askLine(s *shell.Session, prompt string, fn func(line string)) {
	modal.Ask(s.Modal, prompt, false, fn)
}

// compactBytes renders sizes the way ls -h and df -h do: 4.0K, 2.9G, 512.
func compactBytes(n int64) string {
	if n < 1024 {
		return humanize.Comma(n)
	}
	h := humanize.IBytes(uint64(n))
	h = strings.Replace(h, " ", "", 1)
	h = strings.TrimSuffix(h, "iB")
	return h
}
