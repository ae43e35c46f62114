package meta

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/commands/system"
	"orasim/internal/config"
	"orasim/internal/shell"
	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

type capture struct {
	lines []string
}

func (c *capture) WriteLine(text string) { c.lines = append(c.lines, text) }

type harness struct {
	t   *testing.T
	s   *shell.Session
	out *capture
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := shell.NewRegistry()
	system.Register(r)
	Register(r)
	out := &capture{}
	s := shell.New(shell.Options{
		ID:       "meta-test",
		Config:   config.DefaultConfig(),
		Store:    store.NewMemoryStore(),
		Registry: r,
		Out:      out,
		Clock:    func() time.Time { return fixedNow },
	})
	return &harness{t: t, s: s, out: out}
}

func (h *harness) run(line string) []string {
	h.t.Helper()
	h.out.lines = nil
	h.s.Submit(line)
	got := h.out.lines
	h.out.lines = nil
	return got
}

func TestHelp(t *testing.T) {
	h := newHarness(t)
	out := strings.Join(h.run("help"), "\n")
	for _, heading := range []string{"Files:", "Oracle Database 19c:", "Training:"} {
		assert.Contains(t, out, heading)
	}
	assert.Contains(t, out, "  vi, vim")

	want := []string{"ls: ls [-l] [-a] [-h] [path...]", "    List directory contents."}
	if diff := cmp.Diff(want, h.run("help ls")); diff != "" {
		t.Errorf("help ls (-want +got):\n%s", diff)
	}
	assert.Equal(t, "chown: chown [-R] user[:group] path...", h.run("help chgrp")[0])
	assert.Equal(t, []string{"-bash: help: no help topics match `frobnicate'.  Try `help help' or `man -k frobnicate' or `info frobnicate'."}, h.run("help frobnicate"))
}

func TestOracleHelp(t *testing.T) {
	h := newHarness(t)
	out := strings.Join(h.run("oracle-help"), "\n")
	assert.Contains(t, out, "sqlplus")
	assert.Contains(t, out, " 1. Create oinstall and dba groups")
	assert.NotContains(t, out, "  grep")

	assert.Equal(t, "rman: rman target /", h.run("oracle-help rman")[0])
	assert.Equal(t, []string{"oracle-help: ls is not an Oracle tool"}, h.run("oracle-help ls"))
}

func TestCatalogFind(t *testing.T) {
	require.NotNil(t, Find("VIM"))
	assert.Equal(t, "vi", Find("vim").Name)
	assert.Equal(t, "awrrpt", Find("addmrpt").Name)
	assert.Nil(t, Find("nosuch"))
	for _, info := range Catalog {
		assert.NotEmpty(t, info.Usage, info.Name)
		assert.NotEqual(t, "Other", info.Category.String(), info.Name)
	}
}

func TestOcpHints(t *testing.T) {
	h := newHarness(t)
	got := h.run("ocp --hint")
	require.NotEmpty(t, got)
	assert.Equal(t, "Next step: Create oinstall and dba groups", got[0])

	detail := h.run("ocp --hint-detail")
	assert.Contains(t, detail, "  $ groupadd oinstall")
	assert.Contains(t, detail, "  $ groupadd dba")

	h.run("groupadd oinstall")
	h.run("groupadd dba")
	assert.Equal(t, "Next step: Create the oracle OS user", h.run("ocp --hint")[0])

	out := h.run("ocp")
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(out[0], "Oracle Database 19c installation: "), out[0])
	assert.Contains(t, out, "  [x] Create oinstall and dba groups")
	assert.Contains(t, out, "  [ ] Create the oracle OS user")
	assert.Equal(t, "Run 'ocp --hint' for the next step.", out[len(out)-1])

	assert.Equal(t, []string{
		"ocp: unrecognized option '--bogus'",
		"Try 'ocp --help' for more information.",
	}, h.run("ocp --bogus"))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----------]", bar(0, 10))
	assert.Equal(t, "[#####-----]", bar(50, 10))
	assert.Equal(t, "[##########]", bar(100, 10))
}

func TestViWritesFile(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{`"notes.txt" [New]`}, h.run("vi notes.txt"))
	assert.Equal(t, "-- INSERT -- ", h.s.Prompt())

	assert.Empty(t, h.run("alpha"))
	assert.Empty(t, h.run("beta"))
	assert.Equal(t, []string{"E37: No write since last change (add ! to override)"}, h.run(":q"))
	assert.Equal(t, []string{"E492: Not an editor command: frob"}, h.run(":frob"))
	assert.Equal(t, []string{"  1 alpha", "  2 beta"}, h.run(":p"))
	assert.Equal(t, []string{`"notes.txt" [New] 2L, 11B written`}, h.run(":wq"))
	assert.Equal(t, "[root@dbserver01 ~]# ", h.s.Prompt())

	content, ok := h.s.FS.ReadFile("/root/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha\nbeta\n", content)
	assert.NotContains(t, h.s.History.Lines(), "alpha")

	assert.Equal(t, []string{`"notes.txt" 2L, 11B`}, h.run("vi notes.txt"))
	h.run("gamma")
	h.run(":q!")
	content, _ = h.s.FS.ReadFile("/root/notes.txt")
	assert.Equal(t, "alpha\nbeta\n", content)
}

func TestViErrors(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{`"/etc" is a directory`}, h.run("vi /etc"))
	assert.Nil(t, h.s.Modal.Top())

	h.run("vi")
	h.run("text")
	assert.Equal(t, []string{"E32: No file name"}, h.run(":w"))
	assert.Equal(t, []string{`"/missing/dir/f" E212: Can't open file for writing`}, h.run(":w /missing/dir/f"))
	assert.Equal(t, []string{`"scratch" [New] 1L, 5B written`}, h.run(":w scratch"))
	h.run(":q")
	assert.Nil(t, h.s.Modal.Top())
}

func TestViHereDocument(t *testing.T) {
	h := newHarness(t)
	h.run("vi script.sql <<EOF")
	h.run("select 1 from dual;")
	h.run(":wq")
	h.run("EOF")
	assert.Nil(t, h.s.Modal.Top())
	content, ok := h.s.FS.ReadFile("/root/script.sql")
	require.True(t, ok)
	assert.Equal(t, "select 1 from dual;\n", content)
}

func TestRebootKeepsFilesystem(t *testing.T) {
	h := newHarness(t)
	h.run("touch /root/keep.txt")
	h.s.Oracle.SoftwareInstalled = true
	h.s.Oracle.Save()

	out := h.run("reboot")
	assert.Contains(t, out, "The system will reboot now!")
	assert.Contains(t, out, "Red Hat Enterprise Linux 9.4 (Plow)")

	assert.False(t, h.s.Oracle.SoftwareInstalled)
	assert.True(t, h.s.FS.IsFile("/root/keep.txt"))
	assert.Empty(t, h.s.History.Lines())
	assert.Equal(t, "root", h.s.Env.User())
}

func TestTictactoe(t *testing.T) {
	h := newHarness(t)
	h.run("tictactoe")
	assert.Equal(t, "Your move: ", h.s.Prompt())

	out := h.run("1")
	assert.Contains(t, out, " X | 2 | 3")
	assert.Contains(t, out, " 4 | O | 6")
	assert.Equal(t, []string{"Pick an empty square from 1 to 9."}, h.run("5"))
	assert.Equal(t, []string{"Game abandoned."}, h.run("q"))
	assert.Nil(t, h.s.Modal.Top())
}

func TestBoardReply(t *testing.T) {
	empty := board{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

	b := empty
	b[0], b[1] = 'X', 'X'
	b[4] = 'O'
	assert.Equal(t, 2, b.reply(), "blocks the top row")

	b = empty
	b[0], b[1] = 'X', 'X'
	b[3], b[4] = 'O', 'O'
	assert.Equal(t, 5, b.reply(), "prefers winning to blocking")

	b = empty
	assert.Equal(t, 4, b.reply())
	b[4] = 'X'
	assert.Equal(t, 0, b.reply())

	b = board{'X', 'X', 'X', 'O', 'O', ' ', ' ', ' ', ' '}
	assert.Equal(t, byte('X'), b.winner())
}
