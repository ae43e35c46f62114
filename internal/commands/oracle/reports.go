package oracle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"orasim/internal/logging"
	"orasim/internal/shell"
)

type reportKind int

const (
	reportAWR reportKind = iota
	reportADDM
)

func (k reportKind) prefix() string {
	if k == reportADDM {
		return "addmrpt"
	}
	return "awrrpt"
}

// firstSnap is the oldest AWR snapshot; snapshots are hourly and the last
// one completed at the top of the current hour.
const (
	firstSnap = 101
	snapCount = 8
)

type report struct {
	s      *shell.Session
	kind   reportKind
	format string
	begin  int
	end    int
	finish func(failed bool)
}

func (r *report) snapTime(id int) time.Time {
	now := r.s.Oracle.Now().Truncate(time.Hour)
	return now.Add(-time.Duration(firstSnap+snapCount-1-id) * time.Hour)
}

// workloadReport runs the awrrpt.sql / addmrpt.sql dialogue. finish is
// called once the dialogue ends; failed means the script hit an error and
// SQL*Plus exits as WHENEVER SQLERROR EXIT makes it.
func workloadReport(s *shell.Session, kind reportKind, finish func(failed bool)) {
	r := &report{s: s, kind: kind, format: "text", finish: finish}
	if kind == reportADDM {
		r.currentInstance()
		r.days()
		return
	}
	s.Print(
		"",
		"Specify the Report Type",
		"~~~~~~~~~~~~~~~~~~~~~~~",
		"AWR reports can be generated in the following formats.  Please enter the",
		"name of the format at the prompt. Default value is 'html'.",
		"",
		"   'html'          HTML format (default)",
		"   'text'          Text format",
		"   'active-html'   Includes Performance Hub active report",
		"",
	)
	askLine(s, "Enter value for report_type: ", func(answer string) {
		switch v := strings.ToLower(strings.TrimSpace(answer)); v {
		case "", "html", "active-html":
			r.format = "html"
		default:
			r.format = v
		}
		s.Println("")
		s.Printf("Type Specified: %s", r.format)
		r.instances()
		r.days()
	})
}

func (r *report) currentInstance() {
	s, st := r.s, r.s.Oracle
	s.Print(
		"",
		"Current Instance",
		"~~~~~~~~~~~~~~~~",
		"   DB Id    DB Name      Inst Num Instance",
		"----------- ------------ -------- ------------",
	)
	s.Printf(" %10s %-12s %8d %s", dbid(st.DBName()), st.DBName(), 1, st.SID)
	r.instances()
}

func (r *report) instances() {
	s, st := r.s, r.s.Oracle
	s.Print(
		"",
		"Instances in this Workload Repository schema",
		"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~",
		"  DB Id      Inst Num   DB Name      Instance     Host",
		"------------ ---------- ---------    ----------   ------",
	)
	s.Printf("* %-10s %6d      %-12s %-12s %s", dbid(st.DBName()), 1, st.DBName(), st.SID, s.FS.Hostname())
	s.Println("")
	s.Printf("Using %s for database Id", dbid(st.DBName()))
	s.Println("Using          1 for instance number")
}

func (r *report) days() {
	s, st := r.s, r.s.Oracle
	s.Print(
		"",
		"Specify the number of days of snapshots to choose from",
		"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~",
		"Entering the number of days (n) will result in the most recent",
		"(n) days of snapshots being listed.  Pressing <return> without",
		"specifying a number lists all completed snapshots.",
		"",
	)
	askLine(s, "Enter value for num_days: ", func(answer string) {
		answer = strings.TrimSpace(answer)
		if answer != "" {
			if n, err := strconv.Atoi(answer); err != nil || n < 0 {
				r.fail("ORA-01722: invalid number")
				return
			}
		}
		s.Println("")
		if answer == "1" {
			s.Println("Listing the last day's Completed Snapshots")
		} else {
			s.Println("Listing all Completed Snapshots")
		}
		s.Println("Instance     DB Name      Snap Id       Snap Started    Snap Level")
		s.Println("------------ ------------ ---------- ------------------ ----------")
		s.Println("")
		for id := firstSnap; id < firstSnap+snapCount; id++ {
			s.Printf("%-12s %-12s %10d %18s %5d", st.SID, st.DBName(), id, r.snapTime(id).Format("02 Jan 2006 15:04"), 1)
		}
		r.snapshots()
	})
}

func (r *report) valid(id int) bool { return id >= firstSnap && id < firstSnap+snapCount }

func (r *report) snapshots() {
	s := r.s
	s.Print(
		"",
		"",
		"Specify the Begin and End Snapshot Ids",
		"~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~",
	)
	askLine(s, "Enter value for begin_snap: ", func(answer string) {
		begin, err := strconv.Atoi(strings.TrimSpace(answer))
		if err != nil {
			r.fail("ORA-01722: invalid number")
			return
		}
		s.Printf("Begin Snapshot Id specified: %d", begin)
		s.Println("")
		askLine(s, "Enter value for end_snap: ", func(answer string) {
			end, err := strconv.Atoi(strings.TrimSpace(answer))
			if err != nil {
				r.fail("ORA-01722: invalid number")
				return
			}
			s.Printf("End   Snapshot Id specified: %d", end)
			s.Println("")
			switch {
			case !r.valid(begin):
				r.fail(fmt.Sprintf("ORA-20200: Begin Snapshot Id %d does not exist for this database/instance", begin), "ORA-06512: at line 22")
				return
			case !r.valid(end):
				r.fail(fmt.Sprintf("ORA-20200: End Snapshot Id %d does not exist for this database/instance", end), "ORA-06512: at line 25")
				return
			case end <= begin:
				r.fail(fmt.Sprintf("ORA-20200: End Snapshot Id %d must be greater than Begin Snapshot Id %d", end, begin), "ORA-06512: at line 35")
				return
			}
			r.begin, r.end = begin, end
			r.name()
		})
	})
}

func (r *report) name() {
	s := r.s
	ext := ".txt"
	if r.format == "html" {
		ext = ".html"
	}
	def := fmt.Sprintf("%s_1_%d_%d%s", r.kind.prefix(), r.begin, r.end, ext)
	s.Print(
		"",
		"",
		"Specify the Report Name",
		"~~~~~~~~~~~~~~~~~~~~~~~",
		fmt.Sprintf("The default report file name is %s.  To use this name,", def),
		"press <return> to continue, otherwise enter an alternative.",
		"",
	)
	askLine(s, "Enter value for report_name: ", func(answer string) {
		file := strings.TrimSpace(answer)
		if file == "" {
			file = def
		}
		s.Println("")
		s.Printf("Using the report name %s", file)
		s.Println("")
		var body string
		if r.kind == reportADDM {
			s.Println("Running the ADDM analysis on the specified pair of snapshots ...")
			s.Println("")
			s.Println("")
			s.Println("Generating the ADDM report for this analysis ...")
			body = r.addm()
			s.Print(shell.SplitLines(body)...)
		} else {
			body = r.awr()
		}
		writeFile(s, s.FS.Abs(file), body)
		s.Printf("Report written to %s", file)
		logging.Oracle("%s report %d-%d written to %s", r.kind.prefix(), r.begin, r.end, file)
		r.finish(false)
	})
}

// fail prints the PL/SQL error block and ends the script.
func (r *report) fail(lines ...string) {
	s := r.s
	s.Println("declare")
	s.Println("*")
	s.Println("ERROR at line 1:")
	s.Print(lines...)
	s.Println("")
	s.Println("")
	r.finish(true)
}

func (r *report) elapsed() float64 {
	return r.snapTime(r.end).Sub(r.snapTime(r.begin)).Minutes()
}

func (r *report) awr() string {
	st := r.s.Oracle
	b, e := r.snapTime(r.begin), r.snapTime(r.end)
	mins := r.elapsed()
	if r.format == "html" {
		return fmt.Sprintf(`<html lang="en"><head><title>AWR Report for DB: %s, Inst: %s, Snaps: %d-%d</title></head><body class="awr">
<h1 class="awr">WORKLOAD REPOSITORY report for</h1>
<table border="0" class="tdiff"><tr><th class="awrbg">DB Name</th><th class="awrbg">DB Id</th><th class="awrbg">Instance</th><th class="awrbg">Release</th></tr>
<tr><td class="awrc">%s</td><td class="awrc">%s</td><td class="awrc">%s</td><td class="awrc">19.0.0.0.0</td></tr></table>
<p>Begin Snap %d %s, End Snap %d %s, Elapsed %.2f (mins)</p>
<h2 class="awr">Top 10 Foreground Events by Total Wait Time</h2>
<table border="0" class="tdiff"><tr><td>DB CPU</td><td>42.1</td></tr><tr><td>db file sequential read</td><td>11.7</td></tr></table>
</body></html>
`, st.DBName(), st.SID, r.begin, r.end, st.DBName(), dbid(st.DBName()), st.SID,
			r.begin, b.Format("02-Jan-06 15:04:05"), r.end, e.Format("02-Jan-06 15:04:05"), mins)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "WORKLOAD REPOSITORY report for\n\n")
	fmt.Fprintf(&sb, "DB Name         DB Id    Unique Name DB Role          Edition Release    RAC CDB\n")
	fmt.Fprintf(&sb, "------------ ----------- ----------- ---------------- ------- ---------- --- ---\n")
	fmt.Fprintf(&sb, "%-12s %11s %-11s PRIMARY          EE      19.0.0.0.0 NO  NO\n\n", st.DBName(), dbid(st.DBName()), st.DBName())
	fmt.Fprintf(&sb, "Instance     Inst Num Startup Time\n")
	fmt.Fprintf(&sb, "------------ -------- ---------------\n")
	fmt.Fprintf(&sb, "%-12s %8d %s\n\n", st.SID, 1, strings.ToUpper(b.Add(-time.Hour).Format("02-Jan-06 15:04")))
	fmt.Fprintf(&sb, "              Snap Id      Snap Time      Sessions Curs/Sess\n")
	fmt.Fprintf(&sb, "            --------- ------------------- -------- ---------\n")
	fmt.Fprintf(&sb, "Begin Snap:       %3d %s       54       1.2\n", r.begin, b.Format("02-Jan-06 15:04:05"))
	fmt.Fprintf(&sb, "  End Snap:       %3d %s       56       1.3\n", r.end, e.Format("02-Jan-06 15:04:05"))
	fmt.Fprintf(&sb, "   Elapsed:               %.2f (mins)\n", mins)
	fmt.Fprintf(&sb, "   DB Time:               %.2f (mins)\n\n", mins*0.04)
	fmt.Fprintf(&sb, "Top 10 Foreground Events by Total Wait Time\n")
	fmt.Fprintf(&sb, "~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~\n")
	fmt.Fprintf(&sb, "Event                                Waits Total Wait Time (sec) Avg Wait %%DB time Wait Class\n")
	fmt.Fprintf(&sb, "------------------------------ ----------- ---------------------- -------- ------- ----------\n")
	fmt.Fprintf(&sb, "DB CPU                                                       %5.1f             42.1\n", mins*0.6)
	fmt.Fprintf(&sb, "db file sequential read              1,204                    %4.1f   1.18ms   11.7 User I/O\n", mins*0.17)
	fmt.Fprintf(&sb, "log file sync                          311                      .4   1.29ms    2.9 Commit\n\n")
	fmt.Fprintf(&sb, "End of Report\n")
	return sb.String()
}

func (r *report) addm() string {
	st := r.s.Oracle
	b, e := r.snapTime(r.begin), r.snapTime(r.end)
	var sb strings.Builder
	fmt.Fprintf(&sb, "          ADDM Report for Task 'TASK_%d'\n", 1000+r.end)
	fmt.Fprintf(&sb, "          ----------------------------------\n\n")
	fmt.Fprintf(&sb, "Analysis Period\n---------------\n")
	fmt.Fprintf(&sb, "AWR snapshot range from %d to %d.\n", r.begin, r.end)
	fmt.Fprintf(&sb, "Time period starts at %s\n", strings.ToUpper(b.Format("02-Jan-06 03.04.05 PM")))
	fmt.Fprintf(&sb, "Time period ends at %s\n\n", strings.ToUpper(e.Format("02-Jan-06 03.04.05 PM")))
	fmt.Fprintf(&sb, "Analysis Target\n---------------\n")
	fmt.Fprintf(&sb, "Database '%s' with DB ID %s.\n", st.DBName(), dbid(st.DBName()))
	fmt.Fprintf(&sb, "Database version 19.0.0.0.0.\n")
	fmt.Fprintf(&sb, "ADDM performed an analysis of instance %s, numbered 1 and hosted at\n%s.\n\n", st.SID, r.s.FS.Hostname())
	fmt.Fprintf(&sb, "Activity During the Analysis Period\n-----------------------------------\n")
	fmt.Fprintf(&sb, "Total database time was %d seconds.\n", int(r.elapsed()*2.4))
	fmt.Fprintf(&sb, "The average number of active sessions was .04.\n\n")
	fmt.Fprintf(&sb, "Summary of Findings\n-------------------\n")
	fmt.Fprintf(&sb, "   Description               Active Sessions      Recommendations\n")
	fmt.Fprintf(&sb, "                             Percent of Activity\n")
	fmt.Fprintf(&sb, "   ------------------------  -------------------  ---------------\n")
	fmt.Fprintf(&sb, "1  Top SQL Statements        .02 | 51.3           2\n")
	fmt.Fprintf(&sb, "2  Commits and Rollbacks     0 | 6.8              1\n\n")
	fmt.Fprintf(&sb, "          Additional Information\n          ----------------------\n\n")
	fmt.Fprintf(&sb, "Miscellaneous Information\n-------------------------\n")
	fmt.Fprintf(&sb, "Wait class \"Application\" was not consuming significant database time.\n")
	fmt.Fprintf(&sb, "Wait class \"Concurrency\" was not consuming significant database time.\n")
	fmt.Fprintf(&sb, "The database's maintenance windows were active during 100%% of the analysis\nperiod.\n\n")
	fmt.Fprintf(&sb, "End of Report\n")
	return sb.String()
}

// cmdAwrrpt and cmdAddmrpt run the report scripts as "/ as sysdba" and
// leave SQL*Plus when the dialogue ends.
func cmdAwrrpt(s *shell.Session, args []string) { adminReport(s, "awrrpt.sql") }

func cmdAddmrpt(s *shell.Session, args []string) { adminReport(s, "addmrpt.sql") }

func adminReport(s *shell.Session, script string) {
	q := &sqlplus{s: s, prompt: "SQL> ", silent: true, batch: true}
	if lines := q.authenticate(logon{os: true, priv: "SYSDBA"}); lines != nil {
		s.Println("ERROR:")
		s.Print(lines...)
		s.Println("")
		s.Fail()
		return
	}
	drive(s, func() {
		q.enter()
		q.runScript("?/rdbms/admin/" + script)
		if s.Modal.Top() == q.frame {
			s.Modal.Pop()
		}
	})
}
