package vfs

import (
	"strings"
	"time"
)

// InstallMedia is the path of the Oracle software archive shipped in the
// default tree.
const InstallMedia = "/opt/install/LINUX.X64_193000_db_home.zip"

const passwdBase = `root:x:0:0:root:/root:/bin/bash
bin:x:1:1:bin:/bin:/sbin/nologin
daemon:x:2:2:daemon:/sbin:/sbin/nologin
adm:x:3:4:adm:/var/adm:/sbin/nologin
lp:x:4:7:lp:/var/spool/lpd:/sbin/nologin
sync:x:5:0:sync:/sbin:/bin/sync
shutdown:x:6:0:shutdown:/sbin:/sbin/shutdown
halt:x:7:0:halt:/sbin:/sbin/halt
mail:x:8:12:mail:/var/spool/mail:/sbin/nologin
operator:x:11:0:operator:/root:/sbin/nologin
games:x:12:100:games:/usr/games:/sbin/nologin
ftp:x:14:50:FTP User:/var/ftp:/sbin/nologin
nobody:x:65534:65534:Kernel Overflow User:/:/sbin/nologin
systemd-coredump:x:999:997:systemd Core Dumper:/:/sbin/nologin
dbus:x:81:81:System message bus:/:/sbin/nologin
tss:x:59:59:Account used for TPM access:/dev/null:/sbin/nologin
sssd:x:998:996:User for sssd:/:/sbin/nologin
chrony:x:997:995::/var/lib/chrony:/sbin/nologin
sshd:x:74:74:Privilege-separated SSH:/usr/share/empty.sshd:/sbin/nologin
`

const groupBase = `root:x:0:
bin:x:1:
daemon:x:2:
sys:x:3:
adm:x:4:
tty:x:5:
disk:x:6:
lp:x:7:
mem:x:8:
kmem:x:9:
wheel:x:10:
cdrom:x:11:
mail:x:12:
man:x:15:
dialout:x:18:
floppy:x:19:
games:x:20:
tape:x:33:
video:x:39:
ftp:x:50:
lock:x:54:
audio:x:63:
users:x:100:
nobody:x:65534:
dbus:x:81:
utmp:x:22:
utempter:x:35:
input:x:999:
systemd-journal:x:190:
systemd-coredump:x:997:
tss:x:59:
sssd:x:996:
chrony:x:995:
sshd:x:74:
`

const shadowBase = `root:$6$rounds=656000$orasim$f98e699a5496ad051140be0e7834f31fae150733173bef925b6cf6df0a793118fb3e07b82ccbad3c07dc8d:19700:0:99999:7:::
bin:*:19700:0:99999:7:::
daemon:*:19700:0:99999:7:::
nobody:*:19700:0:99999:7:::
sshd:!!:19700::::::
`

const osRelease = `NAME="Red Hat Enterprise Linux"
VERSION="9.4 (Plow)"
ID="rhel"
ID_LIKE="fedora"
VERSION_ID="9.4"
PLATFORM_ID="platform:el9"
PRETTY_NAME="Red Hat Enterprise Linux 9.4 (Plow)"
ANSI_COLOR="0;31"
CPE_NAME="cpe:/o:redhat:enterprise_linux:9::baseos"
HOME_URL="https://www.redhat.com/"
`

const sysctlBase = `# sysctl settings are defined through files in
# /usr/lib/sysctl.d/, /run/sysctl.d/, and /etc/sysctl.d/.
#
# Vendors settings live in /usr/lib/sysctl.d/.
# To override a whole file, create a new file with the same name in
# /etc/sysctl.d/ and put new settings there. To override
# only specific settings, add a file with a lexically later
# name in /etc/sysctl.d/ and put new settings there.
#
# For more information, see sysctl.conf(5) and sysctl.d(5).
`

const limitsBase = `# /etc/security/limits.conf
#
#This file sets the resource limits for the users logged in via PAM.
#
#Each line describes a limit for a user in the form:
#
#<domain>        <type>  <item>  <value>
#

# End of file
`

const selinuxBase = `# This file controls the state of SELinux on the system.
# SELINUX= can take one of these three values:
#     enforcing - SELinux security policy is enforced.
#     permissive - SELinux prints warnings instead of enforcing.
#     disabled - No SELinux policy is loaded.
SELINUX=enforcing
# SELINUXTYPE= can take one of these three values:
#     targeted - Targeted processes are protected,
#     minimum - Modification of targeted policy.
#     mls - Multi Level Security protection.
SELINUXTYPE=targeted
`

const fstabBase = `/dev/mapper/rhel-root   /                       xfs     defaults        0 0
UUID=5b1f2c4e-9a1d-4f7e-8c3b-2d6a0e9f1c7a /boot xfs   defaults        0 0
/dev/mapper/rhel-u01    /u01                    xfs     defaults        0 0
/dev/mapper/rhel-swap   none                    swap    defaults        0 0
`

const rootBashProfile = `# .bash_profile

# Get the aliases and functions
if [ -f ~/.bashrc ]; then
	. ~/.bashrc
fi

# User specific environment and startup programs
`

const rootBashrc = `# .bashrc

# User specific aliases and functions
alias rm='rm -i'
alias cp='cp -i'
alias mv='mv -i'

# Source global definitions
if [ -f /etc/bashrc ]; then
	. /etc/bashrc
fi
`

// treeBuilder assembles the default tree without persisting each step.
type treeBuilder struct {
	root *Node
	now  time.Time
}

func (b *treeBuilder) dir(path string) *Node {
	n := b.root
	for _, s := range splitSegments(path) {
		c, ok := n.Child(s)
		if !ok {
			c = newDir("root", "root", b.now)
			n.put(s, c)
		}
		n = c
	}
	return n
}

func (b *treeBuilder) file(path, content string) *Node {
	segs := splitSegments(path)
	parent := b.dir(Join(segs[:len(segs)-1]))
	f := newFile("root", "root", content, b.now)
	parent.put(segs[len(segs)-1], f)
	return f
}

// defaultTree builds the RHEL9 skeleton a fresh session starts from.
func defaultTree(hostname string, now time.Time) *Node {
	b := &treeBuilder{root: newDir("root", "root", now), now: now}
	for _, d := range []string{
		"/bin", "/boot", "/dev", "/etc", "/home", "/opt", "/proc", "/root",
		"/run", "/sbin", "/srv", "/sys", "/tmp", "/u01", "/usr", "/var",
		"/etc/security", "/etc/selinux", "/etc/sysctl.d", "/etc/yum.repos.d",
		"/usr/bin", "/usr/lib", "/usr/local", "/usr/share",
		"/var/log", "/var/tmp", "/opt/install",
	} {
		b.dir(d)
	}
	b.dir("/root").Permissions = "dr-xr-x---"
	b.dir("/tmp").Permissions = "drwxrwxrwt"

	short := hostname
	if i := strings.IndexByte(hostname, '.'); i > 0 {
		short = hostname[:i]
	}

	b.file("/etc/passwd", passwdBase)
	b.file("/etc/group", groupBase)
	b.file("/etc/shadow", shadowBase).Permissions = "----------"
	b.file("/etc/hostname", hostname+"\n")
	b.file("/etc/hosts", "127.0.0.1   localhost localhost.localdomain localhost4 localhost4.localdomain4\n"+
		"::1         localhost localhost.localdomain localhost6 localhost6.localdomain6\n"+
		"192.168.56.10   "+short+".localdomain "+short+"\n")
	b.file("/etc/os-release", osRelease)
	b.file("/etc/redhat-release", "Red Hat Enterprise Linux release 9.4 (Plow)\n")
	b.file("/etc/sysctl.conf", sysctlBase)
	b.file("/etc/security/limits.conf", limitsBase)
	b.file("/etc/selinux/config", selinuxBase)
	b.file("/etc/fstab", fstabBase)
	b.file("/root/.bash_profile", rootBashProfile)
	b.file("/root/.bashrc", rootBashrc)
	media := b.file(InstallMedia, "")
	media.Size = 3059705302
	return b.root
}
