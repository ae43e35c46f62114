package modal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prompt(s *Stack) string {
	if f := s.Top(); f != nil {
		return f.Prompt()
	}
	return "$ "
}

func submit(s *Stack, line string) {
	if f := s.Top(); f != nil {
		f.Handle(line)
	}
}

func TestStackDiscipline(t *testing.T) {
	var s Stack
	var out []string

	sql := &Tool{
		Name:   "sqlplus",
		Prompt: func() string { return "SQL> " },
		OnExit: func() { out = append(out, "sql bye") },
	}
	rman := &Tool{
		Name:   "rman",
		Prompt: func() string { return "RMAN> " },
		OnExit: func() { out = append(out, "rman bye") },
	}

	before := prompt(&s)
	sql.Enter(&s)
	assert.Equal(t, "SQL> ", prompt(&s))
	rman.Enter(&s)
	assert.Equal(t, "RMAN> ", prompt(&s))
	assert.Equal(t, []string{"sqlplus", "rman"}, s.Names())

	submit(&s, "exit;")
	assert.Equal(t, "SQL> ", prompt(&s))
	submit(&s, "  Quit  ")
	assert.Equal(t, before, prompt(&s))
	assert.False(t, s.Active())
	assert.Equal(t, []string{"rman bye", "sql bye"}, out)
	assert.False(t, s.Pop())
}

func TestToolRuleOrder(t *testing.T) {
	var s Stack
	var hits []string
	tool := &Tool{
		Name:   "sqlplus",
		Prompt: func() string { return "SQL> " },
		Rules: []Rule{
			{Match: Exact("SELECT * FROM V$SQL ORDER BY EXECUTIONS DESC"), Action: func(Call) { hits = append(hits, "ordered") }},
			{Match: Prefix("SELECT * FROM V$SQL"), Action: func(Call) { hits = append(hits, "generic") }},
			{Match: Regex(`^CREATE\s+USER\s+(\w+)`), Action: func(c Call) { hits = append(hits, "user:"+c.Groups[1]) }},
			{Match: Func(func(u string) bool { return u == "PING" }), Action: func(Call) { hits = append(hits, "pong") }},
		},
		Unknown: func(c Call) { hits = append(hits, "unknown:"+c.Line) },
	}
	tool.Enter(&s)

	submit(&s, "select *  from v$sql order by executions desc;")
	submit(&s, "select * from v$sql")
	submit(&s, "create user App identified by x;")
	submit(&s, "ping")
	submit(&s, "")
	submit(&s, "   ;")
	submit(&s, "gibberish here")

	assert.Equal(t, []string{"ordered", "generic", "user:App", "pong", "unknown:gibberish here"}, hits)
	assert.True(t, s.Active(), "unknown input keeps the tool active")
}

func TestAskPopsBeforeCallback(t *testing.T) {
	var s Stack
	tool := &Tool{Name: "sqlplus", Prompt: func() string { return "SQL> " }}
	tool.Enter(&s)

	var user, pass string
	Ask(&s, "Enter user-name: ", false, func(u string) {
		user = u
		Ask(&s, "Enter password: ", true, func(p string) { pass = p })
	})
	assert.Equal(t, "Enter user-name: ", prompt(&s))
	assert.False(t, s.Top().NoHistory)

	submit(&s, "scott")
	require.Equal(t, "Enter password: ", prompt(&s))
	assert.True(t, s.Top().Masked)
	assert.True(t, s.Top().NoHistory)

	submit(&s, "tiger")
	assert.Equal(t, "scott", user)
	assert.Equal(t, "tiger", pass)
	assert.Equal(t, "SQL> ", prompt(&s))
	assert.Equal(t, 1, s.Depth())
}

func TestCollect(t *testing.T) {
	var s Stack
	var got []string
	Collect(&s, "> ", "EOF", func(lines []string) { got = lines })
	submit(&s, "line one")
	submit(&s, "")
	submit(&s, "line three")
	assert.True(t, s.Active())
	submit(&s, "EOF")
	assert.False(t, s.Active())
	assert.Equal(t, []string{"line one", "", "line three"}, got)
}

func TestCustomExitWords(t *testing.T) {
	var s Stack
	exited := false
	tool := &Tool{
		Name:      "vi",
		Prompt:    func() string { return "" },
		ExitWords: []string{":Q!"},
		OnExit:    func() { exited = true },
	}
	tool.Enter(&s)
	submit(&s, "exit")
	assert.True(t, s.Active())
	submit(&s, ":q!")
	assert.True(t, exited)
	assert.False(t, s.Active())
}

func TestClear(t *testing.T) {
	var s Stack
	called := false
	s.Push(&Frame{Name: "x", Prompt: func() string { return "" }, OnExit: func() { called = true }})
	s.Clear()
	assert.False(t, s.Active())
	assert.False(t, called)
}
