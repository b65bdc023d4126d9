package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/robot"
)

type Options struct {
	Port    string `long:"port" short:"p" description:"Serial port of the servo bus (overrides the config file)"`
	Baud    int    `long:"baud" short:"b" description:"Baud rate (overrides the config file)"`
	Config  string `long:"config" short:"c" default:"armctl.json" description:"Config file"`
	Verbose []bool `long:"verbose" short:"v" description:"Verbose logging; repeat for trace"`

	Setup     SetupCommand     `command:"setup" description:"Pick the serial port and save it to the config file"`
	Scan      ScanCommand      `command:"scan" description:"Probe all serial ports for servos"`
	Watch     WatchCommand     `command:"watch" description:"Report servo adapters as they are plugged in or removed"`
	Info      InfoCommand      `command:"info" alias:"discover" description:"Discover motors on the bus and show their state"`
	Telemetry TelemetryCommand `command:"telemetry" alias:"tel" description:"Read sensor values of every motor"`
	Mode      ModeCommand      `command:"mode" description:"Switch a motor between servo, wheel and no-torque modes"`
	Move      MoveCommand      `command:"move" description:"Move a motor in servo mode"`
	Velocity  VelocityCommand  `command:"velocity" alias:"vel" description:"Spin a motor in wheel mode"`
	Torque    TorqueCommand    `command:"torque" description:"Enable or disable torque"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Find mechanical limits by stall detection"`
	Tag       TagCommand       `command:"tag" description:"Change the bus id of the only motor on the bus"`
	Monitor   MonitorCommand   `command:"monitor" description:"Live telemetry chart with keyboard jog"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armctl - motor control and calibration for STS servo-bus arms"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		setupLogging(len(opts.Verbose))
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	switch {
	case verbosity >= 2:
		log.SetLevel(log.TraceLevel)
	case verbosity == 1:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

func configPath() string {
	if opts.Config == "" {
		return robot.DefaultConfigFile
	}
	return opts.Config
}
