// calrecur expands recurring calendar components and answers free/busy
// queries over iCalendar data.
//
// The "expand" command reads a calendar and writes one component per
// occurrence inside a window, with every date-time in UTC. The
// "freebusy" command writes a VCALENDAR holding a VFREEBUSY reply: busy
// periods, or free periods of at least --min-free. The window can be given
// with --start and --end or taken from a CalDAV REPORT body with --report.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/calrecur/freebusy"
	"github.com/cyp0633/calrecur/internal/config"
	"github.com/cyp0633/calrecur/internal/report"
	"github.com/cyp0633/calrecur/recurrence"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/spf13/pflag"
)

const flagTimeFormat = "20060102T150405Z"

var errUsage = errors.New("usage error")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// options collects the flags shared by both commands.
type options struct {
	in         string
	start      string
	end        string
	reportPath string
	configPath string
	minFree    string
	limitStart string
	limitEnd   string
}

func (o *options) addFlags(flagSet *pflag.FlagSet, freeBusy bool) {
	flagSet.StringVarP(&o.in, "in", "i", "-", "input iCalendar file (- for stdin)")
	flagSet.StringVar(&o.start, "start", "", "window start, e.g. 20240101T000000Z")
	flagSet.StringVar(&o.end, "end", "", "window end, e.g. 20240201T000000Z")
	flagSet.StringVar(&o.reportPath, "report", "", "CalDAV REPORT body to take the window from")
	flagSet.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	if freeBusy {
		flagSet.StringVar(&o.minFree, "min-free", "", "report free periods of at least this duration, e.g. PT30M")
		flagSet.StringVar(&o.limitStart, "limit-start", "", "clip reported periods to start here")
		flagSet.StringVar(&o.limitEnd, "limit-end", "", "clip reported periods to end here")
	}
	flagSet.BoolP("help", "h", false, "show help")
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "expand", "freebusy":
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	var opts options
	flagSet := pflag.NewFlagSet("calrecur "+command, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	opts.addFlags(flagSet, command == "freebusy")
	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.SetOutput(stdout)
		flagSet.PrintDefaults()
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, flagSet.Arg(0))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine := recurrence.NewEngineWithConfig(engineConfig, recurrence.WithLogger(logger))

	req, err := loadReport(opts.reportPath)
	if err != nil {
		return err
	}
	window, err := resolveWindow(opts.start, opts.end, req)
	if err != nil {
		return err
	}

	cal, err := readCalendar(opts.in, stdin)
	if err != nil {
		return err
	}

	var out *ical.Calendar
	switch command {
	case "expand":
		limitOnly := opts.start == "" && opts.end == ""
		out = expand(engine, req, cal, window, limitOnly)
	case "freebusy":
		out, err = freeBusy(engine, logger, cfg, &opts, req, cal, window)
		if err != nil {
			return err
		}
	}
	ensureCalendarProps(out, cfg.ProductID)

	if err := ical.NewEncoder(stdout).Encode(out); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func freeBusy(engine *recurrence.Engine, logger *slog.Logger, cfg *config.Config, opts *options,
	req *report.Request, cal *ical.Calendar, window recurrence.Period) (*ical.Calendar, error) {
	minFree := mo.None[recurrence.Dur]()
	switch {
	case opts.minFree != "":
		d, err := recurrence.ParseDur(opts.minFree)
		if err != nil {
			return nil, fmt.Errorf("%w: --min-free: %v", errUsage, err)
		}
		minFree = mo.Some(d)
	case cfg.MinFree != "":
		d, err := cfg.MinFreeDur()
		if err != nil {
			return nil, err
		}
		minFree = mo.Some(d)
	}

	computer := freebusy.New(engine, freebusy.WithLogger(logger))
	request := computer.NewRequest(window.Start.Time, window.End.Time, minFree)
	reply, err := computer.Reply(request, cal.Children)
	if err != nil {
		return nil, err
	}

	limit, err := resolveLimit(opts.limitStart, opts.limitEnd, req)
	if err != nil {
		return nil, err
	}
	if l, ok := limit.Get(); ok {
		reply = freebusy.LimitFreeBusy(reply, l)
	}

	out := ical.NewCalendar()
	out.Children = append(out.Children, reply)
	return out, nil
}

// expand applies a REPORT's component filter and calendar-data options.
// Without expand in calendar-data, limit-recurrence-set returns the
// unexpanded components that affect the window when limitOnly is set.
func expand(engine *recurrence.Engine, req *report.Request, cal *ical.Calendar,
	window recurrence.Period, limitOnly bool) *ical.Calendar {
	var data *report.CalendarData
	if req != nil {
		data = req.CalendarData()
		if req.Query != nil {
			cal = filterComponents(cal, req.Query.ComponentType())
		}
	}

	var out *ical.Calendar
	if limitOnly && data != nil && data.Expand == nil && data.LimitRecurrenceSet != nil {
		out = engine.LimitRecurrenceSet(cal, window)
	} else {
		out = engine.ExpandCalendar(cal, window)
	}
	if data != nil && data.Comp != nil {
		out = &ical.Calendar{Component: data.Comp.Select(out.Component)}
	}
	return out
}

// filterComponents keeps the components of type name and the timezones
// they may refer to. An empty name keeps everything.
func filterComponents(cal *ical.Calendar, name string) *ical.Calendar {
	if name == "" {
		return cal
	}
	out := &ical.Calendar{Component: &ical.Component{Name: cal.Name, Props: cal.Props}}
	for _, child := range cal.Children {
		if child.Name == name || child.Name == ical.CompTimezone {
			out.Children = append(out.Children, child)
		}
	}
	return out
}

func loadReport(path string) (*report.Request, error) {
	if path == "" {
		return nil, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return report.ParseBytes(body)
}

// resolveWindow prefers explicit flags over the REPORT body.
func resolveWindow(start, end string, req *report.Request) (recurrence.Period, error) {
	if start != "" || end != "" {
		tr, err := parseRange(start, end)
		if err != nil {
			return recurrence.Period{}, err
		}
		return tr.Period()
	}
	if req != nil {
		return req.Window()
	}
	return recurrence.Period{}, fmt.Errorf("%w: --start and --end or --report are required", errUsage)
}

func resolveLimit(start, end string, req *report.Request) (mo.Option[recurrence.Period], error) {
	var tr *report.TimeRange
	switch {
	case start != "" || end != "":
		parsed, err := parseRange(start, end)
		if err != nil {
			return mo.None[recurrence.Period](), err
		}
		tr = parsed
	case req != nil:
		if data := req.CalendarData(); data != nil {
			tr = data.LimitFreeBusySet
		}
	}
	if tr == nil {
		return mo.None[recurrence.Period](), nil
	}
	p, err := tr.Period()
	if err != nil {
		return mo.None[recurrence.Period](), err
	}
	return mo.Some(p), nil
}

func parseRange(start, end string) (*report.TimeRange, error) {
	tr := &report.TimeRange{}
	for _, f := range []struct {
		name  string
		value string
		dst   **time.Time
	}{{"start", start, &tr.Start}, {"end", end, &tr.End}} {
		if f.value == "" {
			continue
		}
		t, err := parseFlagTime(f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: --%s: %v", errUsage, f.name, err)
		}
		*f.dst = &t
	}
	return tr, nil
}

// parseFlagTime accepts the iCalendar UTC form or RFC 3339.
func parseFlagTime(v string) (time.Time, error) {
	if t, err := time.Parse(flagTimeFormat, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t.UTC(), nil
}

func readCalendar(path string, stdin io.Reader) (*ical.Calendar, error) {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return cal, nil
}

// ensureCalendarProps sets PRODID and VERSION, which encoding requires.
func ensureCalendarProps(cal *ical.Calendar, productID string) {
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, productID)
	}
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `calrecur expands recurring iCalendar data and computes free/busy time.

Usage:
  calrecur expand   [--in FILE] (--start T --end T | --report FILE) [--config FILE]
  calrecur freebusy [--in FILE] (--start T --end T | --report FILE) [--min-free DUR]
                    [--limit-start T --limit-end T] [--config FILE]

Times are UTC in the form 20240101T000000Z or RFC 3339.

Examples:
  # Expand January from a file
  calrecur expand --in work.ics --start 20240101T000000Z --end 20240201T000000Z

  # Free slots of at least 30 minutes on a working day
  calrecur freebusy --in work.ics --start 20240102T090000Z --end 20240102T170000Z --min-free PT30M
`)
}
