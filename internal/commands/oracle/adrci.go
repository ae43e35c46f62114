package oracle

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"orasim/internal/modal"
	"orasim/internal/shell"
)

// adrci is one ADR command interpreter session. homepath narrows commands
// to the homes below it; empty means every home.
type adrci struct {
	s        *shell.Session
	homepath string
}

var adrComponents = []string{"rdbms", "tnslsnr", "clients", "crs", "asm"}

func cmdAdrci(s *shell.Session, args []string) {
	a := &adrci{s: s}
	var script []string
	for _, arg := range args[1:] {
		if v, ok := strings.CutPrefix(arg, "exec="); ok {
			script = strings.Split(strings.Trim(v, `"'`), ";")
			continue
		}
		if strings.HasPrefix(strings.ToLower(arg), "-") {
			continue
		}
		s.Printf("DIA-48403: Invalid argument [%s] specified", arg)
		return
	}
	if script == nil {
		s.Println("")
		s.Printf("ADRCI: Release 19.0.0.0.0 - Production on %s", s.Oracle.Now().Format("Mon Jan 2 15:04:05 2006"))
		s.Println("")
		s.Println("Copyright (c) 1982, 2019, Oracle and/or its affiliates.  All rights reserved.")
		s.Println("")
		s.Printf("ADR base = %q", base(s))
	}
	tool := &modal.Tool{
		Name:    "adrci",
		Prompt:  func() string { return "adrci> " },
		Rules:   a.rules(),
		Unknown: a.unknown,
	}
	if script != nil {
		for _, stmt := range script {
			if c, ok := modal.Normalize(stmt); ok {
				tool.Dispatch(c)
			}
		}
		return
	}
	drive(s, func() { tool.Enter(s.Modal) })
}

func (a *adrci) rules() []modal.Rule {
	return []modal.Rule{
		rule(modal.Exact("SHOW BASE"), func(modal.Call) { a.s.Printf("ADR base is %q", base(a.s)) }),
		rule(modal.Exact("SHOW HOMES", "SHOW HOME", "SHOW HOMEPATH"), a.showHomes),
		rule(modal.Regex(`^SET\s+HOMEPATH(?:\s+(.+))?$`), a.setHomepath),
		rule(modal.Regex(`^SHOW\s+ALERT(.*)$`), a.showAlert),
		rule(modal.Regex(`^SHOW\s+(INCIDENT|PROBLEM)(?:\s+.*)?$`), a.showEmpty),
		rule(modal.Regex(`^SHOW\s+TRACEFILE(?:\s+.*)?$`), a.showTracefiles),
		rule(modal.Regex(`^PURGE(?:\s+.*)?$`), func(modal.Call) {}),
		rule(modal.Regex(`^HELP(?:\s+(.+))?$`), a.help),
		rule(modal.Regex(`^HOST(?:\s+"?([^"]*)"?)?$`), func(c modal.Call) {
			if c.Groups[1] != "" {
				a.s.Exec(c.Groups[1])
			}
		}),
	}
}

func (a *adrci) unknown(c modal.Call) {
	word := strings.Fields(c.Line)[0]
	a.s.Printf("DIA-48415: Syntax error found in string [%s] at column [%d]", c.Line, len(word))
	a.s.Println("")
}

// homes lists the ADR homes under the base, relative to it.
func (a *adrci) homes() []string {
	var out []string
	root := base(a.s) + "/diag"
	for _, comp := range adrComponents {
		products, ok := a.s.FS.Ls(root + "/" + comp)
		if !ok {
			continue
		}
		for _, p := range products {
			instances, ok := a.s.FS.Ls(root + "/" + comp + "/" + p.Name)
			if !ok {
				continue
			}
			for _, i := range instances {
				if i.IsDir() {
					out = append(out, "diag/"+comp+"/"+p.Name+"/"+i.Name)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// selected returns the homes the current homepath covers.
func (a *adrci) selected() []string {
	if a.homepath == "" {
		return a.homes()
	}
	var out []string
	for _, h := range a.homes() {
		if h == a.homepath || strings.HasPrefix(h, a.homepath+"/") {
			out = append(out, h)
		}
	}
	return out
}

func (a *adrci) showHomes(modal.Call) {
	a.s.Println("ADR Homes: ")
	for _, h := range a.selected() {
		a.s.Println(h)
	}
}

func (a *adrci) setHomepath(c modal.Call) {
	p := strings.Trim(strings.TrimSpace(c.Groups[1]), `"`)
	if p == "" {
		a.homepath = ""
		return
	}
	p = strings.TrimPrefix(strings.TrimSuffix(p, "/"), base(a.s)+"/")
	prev := a.homepath
	a.homepath = p
	if len(a.selected()) == 0 {
		a.homepath = prev
		a.s.Printf("DIA-48447: The input path [%s] does not contain any ADR homes", p)
		a.s.Println("")
	}
}

// alertFile returns the text alert log of an ADR home.
func (a *adrci) alertFile(h string) string {
	dir := base(a.s) + "/" + h
	if strings.HasPrefix(h, "diag/tnslsnr/") {
		return dir + "/alert/log.xml"
	}
	return dir + "/trace/alert_" + path.Base(h) + ".log"
}

func (a *adrci) showAlert(c modal.Call) {
	s := a.s
	opts := strings.Fields(strings.ToUpper(c.Groups[1]))
	tail := -1
	for i, o := range opts {
		if o == "-TAIL" {
			tail = 10
			if i+1 < len(opts) {
				if n, err := strconv.Atoi(opts[i+1]); err == nil {
					tail = n
				}
			}
		}
	}
	homes := a.selected()
	switch {
	case len(homes) == 0:
		s.Println("DIA-48494: ADR home is not set, the corresponding operation cannot be done")
		s.Println("")
		return
	case len(homes) > 1 && tail >= 0:
		s.Println("DIA-48449: Tail alert can only apply to single ADR home")
		s.Println("")
		return
	case len(homes) == 1:
		a.printAlert(homes[0], tail)
		return
	}
	s.Println("")
	s.Println("Choose the home from which to view the alert log:")
	s.Println("")
	for i, h := range homes {
		s.Printf("%d: %s", i+1, h)
	}
	s.Println("Q: to quit")
	s.Println("")
	askLine(s, "Please select option: ", func(answer string) {
		answer = strings.TrimSpace(answer)
		if strings.EqualFold(answer, "Q") {
			return
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(homes) {
			s.Println("Invalid option.")
			return
		}
		a.printAlert(homes[n-1], tail)
	})
}

func (a *adrci) printAlert(h string, tail int) {
	s := a.s
	content, _ := s.FS.ReadFile(a.alertFile(h))
	lines := shell.SplitLines(content)
	if tail >= 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	if tail < 0 {
		s.Println("")
		s.Printf("ADR Home = %s/%s:", base(s), h)
		s.Println(strings.Repeat("*", 73))
	}
	s.Print(lines...)
}

func (a *adrci) showEmpty(modal.Call) {
	for _, h := range a.selected() {
		a.s.Println("")
		a.s.Printf("ADR Home = %s/%s:", base(a.s), h)
		a.s.Println(strings.Repeat("*", 73))
		a.s.Println("0 rows fetched")
	}
	a.s.Println("")
}

func (a *adrci) showTracefiles(modal.Call) {
	for _, h := range a.selected() {
		entries, _ := a.s.FS.Ls(base(a.s) + "/" + h + "/trace")
		for _, e := range entries {
			if !e.IsDir() {
				a.s.Printf("     %s/trace/%s", h, e.Name)
			}
		}
	}
}

func (a *adrci) help(c modal.Call) {
	s := a.s
	if topic := strings.TrimSpace(c.Groups[1]); topic != "" {
		s.Println("")
		s.Printf("  Usage: %s", strings.ToUpper(topic))
		s.Println("")
		return
	}
	s.Println("")
	s.Println(" HELP [topic]")
	s.Println("   Available Topics:")
	for _, t := range []string{
		"CREATE REPORT", "ECHO", "EXIT", "HELP", "HOST", "IPS", "PURGE", "RUN",
		"SET BASE", "SET BROWSER", "SET CONTROL", "SET ECHO", "SET EDITOR",
		"SET HOMES | HOME | HOMEPATH", "SET TERMOUT", "SHOW ALERT", "SHOW BASE",
		"SHOW CONTROL", "SHOW HM_RUN", "SHOW HOMES | HOME | HOMEPATH", "SHOW INCDIR",
		"SHOW INCIDENT", "SHOW LOG", "SHOW PROBLEM", "SHOW REPORT", "SHOW TRACEFILE",
		"SPOOL",
	} {
		s.Println(fmt.Sprintf("        %s", t))
	}
	s.Println("")
	s.Println(" There are other commands intended to be used directly by Oracle, type")
	s.Println(" \"HELP EXTENDED\" to see the list")
	s.Println("")
}
