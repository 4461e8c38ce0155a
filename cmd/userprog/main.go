package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	humanize "github.com/dustin/go-humanize"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/pflag"

	"github.com/evanphx/userprog/config"
	"github.com/evanphx/userprog/console"
	"github.com/evanphx/userprog/fs"
	"github.com/evanphx/userprog/fs/host"
	"github.com/evanphx/userprog/fs/memfs"
	"github.com/evanphx/userprog/kernel"
	clog "github.com/evanphx/userprog/log"
	"github.com/evanphx/userprog/programs"
	"github.com/evanphx/userprog/syscalls"
)

var (
	fConfig  = pflag.StringP("config", "c", "", "YAML file describing the machine")
	fRoot    = pflag.StringP("root", "r", "", "host directory to serve as the filesystem")
	fImage   = pflag.StringP("image", "i", "", "tar archive to load as the filesystem")
	fFDs     = pflag.Int("fd-capacity", 0, "descriptors per process, standard streams included")
	fStack   = pflag.Uint64("stack-size", 0, "user stack size in bytes")
	fTrace   = pflag.BoolP("trace", "t", false, "log every syscall")
	fLogFile = pflag.String("log-file", "", "write kernel logs here instead of stderr")
	fList    = pflag.BoolP("list", "l", false, "list the builtin programs and exit")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()

	if *fConfig != "" {
		var err error

		cfg, err = config.Load(*fConfig)
		if err != nil {
			return nil, err
		}
	}

	flags := pflag.CommandLine

	if flags.Changed("root") {
		cfg.Root = *fRoot
	}

	if flags.Changed("image") {
		cfg.Image = *fImage
	}

	if flags.Changed("fd-capacity") {
		cfg.FDCapacity = *fFDs
	}

	if flags.Changed("stack-size") {
		cfg.StackSize = *fStack
	}

	if flags.Changed("trace") {
		cfg.Trace = *fTrace
	}

	if flags.Changed("log-file") {
		cfg.LogFile = *fLogFile
	}

	if args := pflag.Args(); len(args) > 0 {
		cfg.Program = args[0]
		cfg.Args = args[1:]
	}

	return cfg, cfg.Validate()
}

func openFS(cfg *config.Config) (fs.FileSystem, error) {
	switch {
	case cfg.Root != "":
		return host.NewHostFS(cfg.Root)
	case cfg.Image != "":
		return memfs.LoadTar(cfg.Image)
	default:
		return memfs.New(), nil
	}
}

func reportHost() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		clog.L.Debug("unable to read host memory", "error", err)
		return
	}

	clog.L.Debug("host-memory", "total", humanize.Bytes(vm.Total), "available", humanize.Bytes(vm.Available))
}

func reportUsage(k *kernel.Kernel) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	mi, err := p.MemoryInfo()
	if err != nil {
		return
	}

	clog.L.Info("machine-stopped",
		"halted", k.Halted(),
		"live", k.Processes().Len(),
		"rss", humanize.Bytes(mi.RSS),
	)
}

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	if *fList {
		for _, name := range programs.Names() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatal(err)
		}

		defer f.Close()

		clog.Redirect(f, hclog.Info)
	}

	if cfg.Trace {
		clog.EnableTrace()
	} else {
		clog.EnableDebug()
	}

	if cfg.Program == "" {
		log.Fatal("no program given; try --list")
	}

	fsys, err := openFS(cfg)
	if err != nil {
		log.Fatal(err)
	}

	k, err := kernel.NewKernel(kernel.Options{
		FS:         fsys,
		Console:    console.New(os.Stdin, os.Stdout),
		FDCapacity: cfg.FDCapacity,
		StackSize:  cfg.StackSize,
	})
	if err != nil {
		log.Fatal(err)
	}

	k.Invoker = &syscalls.Invoker{
		Kernel: k,
	}

	programs.Register(k)

	reportHost()

	args := append([]string{cfg.Program}, cfg.Args...)

	proc, err := k.InitProcess(args)
	if err != nil {
		log.Fatal(err)
	}

	select {
	case <-proc.Done():
	case <-k.Halting():
	}

	code := 0
	if proc.Exited() {
		code = proc.ExitCode()
	}

	reportUsage(k)

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	os.Exit(code & 0xff)
}
