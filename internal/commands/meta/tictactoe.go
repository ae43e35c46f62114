package meta

import (
	"strconv"
	"strings"

	"orasim/internal/modal"
	"orasim/internal/shell"
)

// board squares are 0-8; ' ' is empty.
type board [9]byte

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func (b *board) winner() byte {
	for _, l := range lines {
		if c := b[l[0]]; c != ' ' && c == b[l[1]] && c == b[l[2]] {
			return c
		}
	}
	return ' '
}

func (b *board) full() bool {
	for _, c := range b {
		if c == ' ' {
			return false
		}
	}
	return true
}

// completing returns the empty square that gives mark three in a row.
func (b *board) completing(mark byte) (int, bool) {
	for _, l := range lines {
		count, empty := 0, -1
		for _, i := range l {
			switch b[i] {
			case mark:
				count++
			case ' ':
				empty = i
			}
		}
		if count == 2 && empty >= 0 {
			return empty, true
		}
	}
	return 0, false
}

// reply picks the computer's square: win, block, centre, corner, side.
func (b *board) reply() int {
	if i, ok := b.completing('O'); ok {
		return i
	}
	if i, ok := b.completing('X'); ok {
		return i
	}
	for _, i := range []int{4, 0, 2, 6, 8, 1, 3, 5, 7} {
		if b[i] == ' ' {
			return i
		}
	}
	return -1
}

func (b *board) render() []string {
	cell := func(i int) string {
		if b[i] == ' ' {
			return strconv.Itoa(i + 1)
		}
		return string(b[i])
	}
	row := func(r int) string {
		return " " + cell(r*3) + " | " + cell(r*3+1) + " | " + cell(r*3+2)
	}
	return []string{row(0), "---+---+---", row(1), "---+---+---", row(2)}
}

func cmdTictactoe(s *shell.Session, _ []string) {
	b := board{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	s.Println("Tic-tac-toe. You are X. Enter a square number, q to quit.")
	s.Print(b.render()...)

	var f *modal.Frame
	end := func(msg string) {
		s.Println(msg)
		if s.Modal.Top() == f {
			s.Modal.Pop()
		}
	}
	f = &modal.Frame{
		Name:      "tictactoe",
		Prompt:    func() string { return "Your move: " },
		NoHistory: true,
		Handle: func(line string) {
			line = strings.TrimSpace(strings.ToLower(line))
			switch line {
			case "":
				return
			case "q", "quit", "exit":
				end("Game abandoned.")
				return
			}
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > 9 || b[n-1] != ' ' {
				s.Println("Pick an empty square from 1 to 9.")
				return
			}
			b[n-1] = 'X'
			if b.winner() == 'X' {
				s.Print(b.render()...)
				end("You win!")
				return
			}
			if b.full() {
				s.Print(b.render()...)
				end("It's a draw.")
				return
			}
			b[b.reply()] = 'O'
			s.Print(b.render()...)
			switch {
			case b.winner() == 'O':
				end("I win!")
			case b.full():
				end("It's a draw.")
			}
		},
	}
	s.Modal.Push(f)
}
