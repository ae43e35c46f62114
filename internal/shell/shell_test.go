package shell

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/config"
	"orasim/internal/modal"
	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

type capture struct {
	lines []string
}

func (c *capture) WriteLine(text string) { c.lines = append(c.lines, text) }

func (c *capture) take() []string {
	out := c.lines
	c.lines = nil
	return out
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterTable(Table{
		"echo": func(s *Session, args []string) {
			s.Println(strings.Join(args[1:], " "))
		},
		"cat": func(s *Session, args []string) {
			lines, err := s.Input("cat", args[1:])
			if err != nil {
				return
			}
			for _, l := range lines {
				s.Println(l)
			}
		},
		"fail": func(s *Session, args []string) {
			s.Error("fail: " + strings.Join(args[1:], " "))
		},
		"upper": func(s *Session, args []string) {
			in, _ := s.Stdin()
			for _, l := range in {
				s.Println(strings.ToUpper(l))
			}
		},
		"cd": func(s *Session, args []string) {
			target := ""
			if len(args) > 1 {
				target = args[1]
			}
			if !s.FS.Cd(target) {
				s.Errorf("-bash: cd: %s: No such file or directory", target)
			}
		},
	})
	return r
}

func newTestSession(t *testing.T, st store.BlobStore) (*Session, *capture) {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	out := &capture{}
	s := New(Options{
		ID:       "test",
		Config:   config.DefaultConfig(),
		Store:    st,
		Registry: testRegistry(),
		Out:      out,
		Clock:    func() time.Time { return fixedNow },
	})
	return s, out
}

func TestPrompt(t *testing.T) {
	s, _ := newTestSession(t, nil)
	assert.Equal(t, "[root@dbserver01 ~]# ", s.Prompt())

	s.Submit("cd /etc/security")
	assert.Equal(t, "[root@dbserver01 security]# ", s.Prompt())

	s.Submit("cd /")
	assert.Equal(t, "[root@dbserver01 /]# ", s.Prompt())

	s.Env.Push("guest", false)
	assert.Equal(t, "[guest@dbserver01 /]$ ", s.Prompt())

	tool := &modal.Tool{Name: "sqlplus", Prompt: func() string { return "SQL> " }}
	tool.Enter(s.Modal)
	assert.Equal(t, "SQL> ", s.Prompt())
	s.Submit("exit")
	assert.Equal(t, "[guest@dbserver01 /]$ ", s.Prompt())
}

func TestUnknownCommand(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Submit("frobnicate --now")
	assert.Equal(t, []string{"-bash: frobnicate: command not found"}, out.take())

	s.Submit("   ")
	assert.Empty(t, out.take())
	assert.Equal(t, []string{"frobnicate --now"}, s.History.Lines())
}

func TestQuotingAndVariables(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Submit("ORACLE_SID=ORCL")
	s.Submit(`echo $ORACLE_SID "${ORACLE_SID}_x" '$ORACLE_SID'`)
	s.Submit(`echo "a   b" c\ d`)
	s.Submit("echo ~ ~/x a~b")
	s.Submit("echo one # a comment")
	assert.Equal(t, []string{
		"ORCL ORCL_x $ORACLE_SID",
		"a   b c d",
		"/root /root/x a~b",
		"one",
	}, out.take())
}

func TestTemporaryAssignment(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Registry.Register("sid", func(s *Session, _ []string) { s.Println(s.Env.Value("ORACLE_SID")) })
	s.Submit("ORACLE_SID=TEMP sid")
	s.Submit("sid")
	assert.Equal(t, []string{"TEMP", ""}, out.take())
	_, ok := s.Env.Get("ORACLE_SID")
	assert.False(t, ok)
}

func TestRedirection(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Submit("echo first > /tmp/out.txt")
	s.Submit("echo second >> /tmp/out.txt")
	content, ok := s.FS.ReadFile("/tmp/out.txt")
	require.True(t, ok)
	assert.Equal(t, "first\nsecond\n", content)

	s.Submit("fail loudly 2> /tmp/err.txt")
	s.Submit("fail quietly 2>/dev/null")
	s.Submit("echo gone > /dev/null")
	assert.Empty(t, out.take())
	content, _ = s.FS.ReadFile("/tmp/err.txt")
	assert.Equal(t, "fail: loudly\n", content)

	s.Submit("fail both > /tmp/both.txt 2>&1")
	content, _ = s.FS.ReadFile("/tmp/both.txt")
	assert.Equal(t, "fail: both\n", content)

	s.Submit("echo x > /nope/file")
	assert.Equal(t, []string{"-bash: /nope/file: No such file or directory"}, out.take())

	s.Submit("cat < /tmp/out.txt")
	assert.Equal(t, []string{"first", "second"}, out.take())
}

func TestPipes(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.FS.Touch("/tmp/list", "alpha\nbeta\n")
	s.Submit("cat /tmp/list | upper | cat")
	assert.Equal(t, []string{"ALPHA", "BETA"}, out.take())

	s.Submit("| cat")
	assert.Equal(t, []string{"-bash: syntax error near unexpected token `|'"}, out.take())
	s.Submit("echo x >")
	assert.Equal(t, []string{"-bash: syntax error near unexpected token `newline'"}, out.take())
	s.Submit(`echo "unterminated`)
	assert.Equal(t, []string{"-bash: unexpected EOF while looking for matching `\"'"}, out.take())
}

func TestConditionalChains(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Submit("echo a && echo b; fail x && echo skipped || echo recovered")
	assert.Equal(t, []string{"a", "b", "fail: x", "recovered"}, out.take())

	s.Submit("cd /missing || echo fallback")
	assert.Equal(t, []string{"-bash: cd: /missing: No such file or directory", "fallback"}, out.take())
}

func TestExitStatus(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Submit("echo a; echo $?")
	assert.Equal(t, []string{"a", "0"}, out.take())

	s.Submit("fail x; echo $?")
	assert.Equal(t, []string{"fail: x", "1"}, out.take())

	s.Submit("nosuch; echo $?")
	assert.Equal(t, []string{"-bash: nosuch: command not found", "127"}, out.take())

	s.Submit("fail y")
	out.take()
	s.Submit("echo $? $?")
	assert.Equal(t, []string{"1 1"}, out.take())
	s.Submit("echo $?")
	assert.Equal(t, []string{"0"}, out.take())
}

func TestHeredoc(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Env.Set("NAME", "orcl")
	s.Submit("cat > /tmp/init.ora << EOF; echo done")
	assert.Equal(t, "> ", s.Prompt())
	s.Submit("db_name=$NAME")
	s.Submit("processes=300")
	s.Submit("EOF")
	assert.False(t, s.Modal.Active())
	assert.Equal(t, []string{"done"}, out.take())
	content, _ := s.FS.ReadFile("/tmp/init.ora")
	assert.Equal(t, "db_name=orcl\nprocesses=300\n", content)

	s.Submit("cat <<'END'")
	s.Submit("$NAME")
	s.Submit("END")
	assert.Equal(t, []string{"$NAME"}, out.take())
}

func TestGlobbing(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.FS.Mkdir("/tmp/g")
	s.FS.Touch("/tmp/g/b.sh", "")
	s.FS.Touch("/tmp/g/a.sh", "")
	s.FS.Touch("/tmp/g/c.txt", "")
	s.FS.Touch("/tmp/g/.hidden.sh", "")

	s.Submit("echo /tmp/g/*.sh")
	s.Submit("echo /tmp/g/*.none")
	s.Submit(`echo "/tmp/g/*.sh" '?'`)
	s.Submit("cd /tmp/g")
	s.Submit("echo ?.txt")
	assert.Equal(t, []string{
		"/tmp/g/a.sh /tmp/g/b.sh",
		"/tmp/g/*.none",
		"/tmp/g/*.sh ?",
		"c.txt",
	}, out.take())
}

func TestPathInvocation(t *testing.T) {
	s, out := newTestSession(t, nil)
	ran := 0
	s.Registry.RegisterScript("root.sh", func(s *Session, args []string) {
		ran++
		s.Println("ran " + s.Invoked())
	})
	s.Submit("root.sh")
	assert.Equal(t, []string{"-bash: root.sh: command not found"}, out.take())

	s.Submit("/tmp/root.sh")
	assert.Equal(t, []string{"-bash: /tmp/root.sh: No such file or directory"}, out.take())

	s.FS.Touch("/tmp/root.sh", "#!/bin/sh\n")
	s.Submit("cd /tmp")
	s.Submit("./root.sh")
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"ran ./root.sh"}, out.take())

	s.FS.Touch("/tmp/plain.sh", "#!/bin/bash\necho from script\nX=1\n")
	s.Submit("/tmp/plain.sh")
	assert.Equal(t, []string{"from script"}, out.take())
	assert.Equal(t, "1", s.Env.Value("X"))

	s.Submit("/tmp")
	assert.Equal(t, []string{"-bash: /tmp: Is a directory"}, out.take())
}

func TestRecursiveScriptIsBounded(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.FS.Touch("/tmp/loop.sh", "/tmp/loop.sh\n")
	s.Submit("/tmp/loop.sh")
	assert.Equal(t, []string{"-bash: /tmp/loop.sh: maximum nesting depth exceeded"}, out.take())
}

func TestRegistryLastWinsAndMiddleware(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Registry.Register("echo", func(s *Session, args []string) { s.Println("override") })
	s.Registry.Wrap("echo", func(next Handler) Handler {
		return func(s *Session, args []string) {
			next(s, args)
			s.Println("inner")
		}
	})
	s.Registry.Wrap("echo", func(next Handler) Handler {
		return func(s *Session, args []string) {
			s.Println("outer")
			next(s, args)
		}
	})
	s.Submit("echo hi")
	assert.Equal(t, []string{"outer", "override", "inner"}, out.take())
}

func TestPanickingHandlerIsContained(t *testing.T) {
	s, out := newTestSession(t, nil)
	s.Registry.Register("boom", func(*Session, []string) { panic("kaboom") })
	assert.NotPanics(t, func() { s.Submit("boom; echo after") })
	assert.Equal(t, []string{"after"}, out.take())
}

func TestMaskedInputSkipsHistory(t *testing.T) {
	s, _ := newTestSession(t, nil)
	var got string
	modal.Ask(s.Modal, "Enter password: ", true, func(a string) { got = a })
	assert.True(t, s.Masked())
	s.Submit("secret")
	assert.Equal(t, "secret", got)
	assert.Empty(t, s.History.Lines())
	assert.False(t, s.Masked())
}

func TestHistoryNavigation(t *testing.T) {
	st := store.NewMemoryStore()
	s, _ := newTestSession(t, st)
	for _, l := range []string{"echo 1", "echo 2", "echo 3"} {
		s.Submit(l)
	}
	h := s.History
	line, ok := h.Prev()
	assert.True(t, ok)
	assert.Equal(t, "echo 3", line)
	h.Prev()
	line, _ = h.Prev()
	assert.Equal(t, "echo 1", line)
	_, ok = h.Prev()
	assert.False(t, ok)
	line, _ = h.Next()
	assert.Equal(t, "echo 2", line)
	h.Next()
	line, ok = h.Next()
	assert.True(t, ok)
	assert.Equal(t, "", line)
	_, ok = h.Next()
	assert.False(t, ok)

	reloaded := NewHistory(st)
	if diff := cmp.Diff([]string{"echo 1", "echo 2", "echo 3"}, reloaded.Lines()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRebootKeepsFilesystem(t *testing.T) {
	st := store.NewMemoryStore()
	s, _ := newTestSession(t, st)
	s.Submit("echo kept > /tmp/kept")
	s.Oracle.SoftwareInstalled = true
	s.Oracle.Save()
	s.Env.Push("guest", false)
	(&modal.Tool{Name: "rman", Prompt: func() string { return "RMAN> " }}).Enter(s.Modal)

	s.Reboot()

	assert.False(t, s.Modal.Active())
	assert.Empty(t, s.History.Lines())
	assert.False(t, s.Oracle.SoftwareInstalled)
	assert.Equal(t, "root", s.Env.User())
	assert.Equal(t, 1, s.Env.Depth())
	content, ok := s.FS.ReadFile("/tmp/kept")
	assert.True(t, ok)
	assert.Equal(t, "kept\n", content)

	_, err := st.Get(store.KeyHistory)
	assert.ErrorIs(t, err, store.ErrNotFound)

	s.ResetAll()
	assert.False(t, s.FS.Exists("/tmp/kept"))
}

func TestSessionsAreIsolated(t *testing.T) {
	shared := store.NewMemoryStore()
	a, _ := newTestSession(t, store.WithNamespace(shared, "a"))
	b, _ := newTestSession(t, store.WithNamespace(shared, "b"))
	a.Submit("echo only-a > /tmp/a")
	assert.True(t, a.FS.Exists("/tmp/a"))
	assert.False(t, b.FS.Exists("/tmp/a"))
}
