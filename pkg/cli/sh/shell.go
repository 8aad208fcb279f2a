package sh

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/mqtt"
)

// Shell provides ishell backed interactive shell over remote devices.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// Device is the current device name.
	Device string

	Shell  *ishell.Shell
	Remote *mqtt.Remote
}

const (
	shellKey         = "$shell"
	unselectedPrompt = "[none] > "
	defaultMQTTURL   = "mqtt://localhost:1883/zeus/"
	defaultWait      = 15 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	mqttURL    = defaultMQTTURL
	deviceName string
	wait       = defaultWait

	commands = []*ishell.Cmd{
		&ListCmd,
		&UseCmd,
		&StatsCmd,
		&SetCmd,
		&FreqCmd,
		&AbortCmd,
		&WatchCmd,
		&ChipsCmd,
	}
)

func init() {
	if val := os.Getenv("ZEUS_MQTT"); val != "" {
		mqttURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL with topic prefix.")
	flag.StringVar(&deviceName, "device", deviceName, "Device to use, e.g. ZUS0.")
	flag.DurationVar(&wait, "wait", wait, "Time to wait for stats and replies.")
}

// AddCmds adds commands; it is used during init.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(remote *mqtt.Remote) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Remote: remote,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustUseDevice wraps command func requiring a selected device.
func MustUseDevice(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Device == "" {
			c.Err(errors.New("no device selected, use NAME first"))
			return
		}
		fn(c)
	}
}

// Use selects the current device.
func (s *Shell) Use(name string) {
	s.Device = name
	if name == "" {
		s.Shell.SetPrompt(unselectedPrompt)
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", name))
}

// Print prints s as JSON or as key value lines.
func (s *Shell) Print(c *ishell.Context, st *structpb.Struct) {
	if s.OutputJSON {
		out, err := mqtt.Encode(st)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Print(mqtt.Format(st))
}

// Set applies a setting on the current device and prints the reply.
func (s *Shell) Set(c *ishell.Context, option, setting string) {
	reply, err := s.Remote.Set(context.Background(), s.Device, option, setting)
	if err != nil {
		c.Err(err)
		return
	}
	if msg := reply.Fields["error"].GetStringValue(); msg != "" {
		c.Err(errors.New(msg))
		return
	}
	if s.OutputJSON {
		s.Print(c, reply)
		return
	}
	if msg := reply.Fields["reply"].GetStringValue(); msg != "" {
		c.Println(msg)
		return
	}
	c.Println("OK")
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ListCmd lists exported devices.
	ListCmd = ishell.Cmd{
		Name:    "list",
		Aliases: []string{"l", "discover"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			metas, err := s.Remote.Discover(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if len(metas) == 0 {
				c.Println("No devices found")
				return
			}
			for _, meta := range metas {
				if s.OutputJSON {
					s.Print(c, meta)
					continue
				}
				c.Printf("%s: %s\n",
					meta.Fields["name"].GetStringValue(),
					meta.Fields["path"].GetStringValue())
			}
		},
	}

	// UseCmd selects the current device.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "NAME",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("NAME required"))
				return
			}
			ShellFrom(c).Use(c.Args[0])
		},
	}

	// StatsCmd prints the next stats of the current device.
	StatsCmd = ishell.Cmd{
		Name:    "stats",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustUseDevice(func(c *ishell.Context) {
			s := ShellFrom(c)
			st, err := s.Remote.Stats(context.Background(), s.Device)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, st)
		}),
	}

	// SetCmd applies a device setting.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "OPTION [SETTING]",
		Func: MustUseDevice(func(c *ishell.Context) {
			if len(c.Args) < 1 || len(c.Args) > 2 {
				c.Err(errors.New("OPTION required"))
				return
			}
			var setting string
			if len(c.Args) > 1 {
				setting = c.Args[1]
			}
			ShellFrom(c).Set(c, c.Args[0], setting)
		}),
	}

	// FreqCmd changes the clock of the current device.
	FreqCmd = ishell.Cmd{
		Name:    "freq",
		Aliases: []string{"f"},
		Help:    fmt.Sprintf("MHZ(%d-%d)", calib.ClockMin, calib.ClockMax),
		Func: MustUseDevice(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("MHZ required"))
				return
			}
			mhz, err := strconv.Atoi(c.Args[0])
			if err != nil || mhz < calib.ClockMin || mhz > calib.ClockMax {
				c.Err(fmt.Errorf("invalid MHZ %q, valid range %d-%d", c.Args[0], calib.ClockMin, calib.ClockMax))
				return
			}
			ShellFrom(c).Set(c, "freq", c.Args[0])
		}),
	}

	// AbortCmd abandons the work of the current device.
	AbortCmd = ishell.Cmd{
		Name:    "abort",
		Aliases: []string{"a"},
		Help:    "",
		Func: MustUseDevice(func(c *ishell.Context) {
			ShellFrom(c).Set(c, "abortwork", "true")
		}),
	}

	// ChipsCmd prints the per-core nonce and error counters of each chip.
	ChipsCmd = ishell.Cmd{
		Name:    "chips",
		Aliases: []string{"c"},
		Help:    "",
		Func: MustUseDevice(func(c *ishell.Context) {
			s := ShellFrom(c)
			st, err := s.Remote.Chips(context.Background(), s.Device)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, st)
				return
			}
			for _, val := range st.Fields["chips"].GetListValue().GetValues() {
				c.Print(mqtt.Format(val.GetStructValue()))
			}
		}),
	}

	// WatchCmd prints stats of the current device as they are published.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[COUNT]",
		Func: MustUseDevice(func(c *ishell.Context) {
			count := 3
			if len(c.Args) > 0 {
				n, err := strconv.Atoi(c.Args[0])
				if err != nil || n < 1 {
					c.Err(fmt.Errorf("invalid COUNT %q", c.Args[0]))
					return
				}
				count = n
			}
			s := ShellFrom(c)
			for i := 0; i < count; i++ {
				st, err := s.Remote.Stats(context.Background(), s.Device)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(st.Fields["statline"].GetStringValue())
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	q, err := mqtt.NewQueueFromURL(mqttURL, "")
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalf("connect %s failed: %v", mqttURL, err)
	}
	defer q.Close()

	remote := mqtt.NewRemote(q)
	// stats arrive once per publish interval
	remote.Timeout = wait
	s := New(remote)
	s.Use(deviceName)
	s.Run(flag.Args()...)
}
