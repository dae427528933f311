/*
DESCRIPTION
  vidval replays recorded video coding command traces against the tracker
  and reports every command whose diagnostics differ from those the trace
  expects.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// vidval is a command line trace validator.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/vidval/trace"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logSuppress  = false
)

const pkg = "vidval: "

var levels = map[string]int8{
	"debug":   logging.Debug,
	"info":    logging.Info,
	"warning": logging.Warning,
	"error":   logging.Error,
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		logPath     = flag.String("log", "vidval.log", "log file path")
		verbosity   = flag.String("v", "info", "log verbosity: debug, info, warning or error")
		watch       = flag.Bool("watch", false, "replay traces again whenever they change")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] trace.yaml|dir ...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level, ok := levels[strings.ToLower(*verbosity)]
	if !ok {
		fmt.Fprintf(os.Stderr, pkg+"unknown verbosity %q\n", *verbosity)
		os.Exit(2)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	defer fileLog.Close()
	log := logging.New(level, io.MultiWriter(fileLog, os.Stderr), logSuppress)
	log.Info("starting vidval", "version", version)

	paths, err := expand(flag.Args())
	if err != nil {
		log.Fatal(pkg+"could not find traces", "error", err.Error())
	}
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ok = replayAll(paths, log, level)
	if !*watch {
		if !ok {
			os.Exit(1)
		}
		return
	}

	err = watchTraces(paths, log, level)
	if err != nil {
		log.Fatal(pkg+"watch failed", "error", err.Error())
	}
}

// expand returns the trace files named by args, replacing directories with
// the YAML files they contain.
func expand(args []string) ([]string, error) {
	var paths []string
	for _, a := range args {
		fi, err := os.Stat(a)
		if err != nil {
			return nil, errors.Wrap(err, "could not stat trace path")
		}
		if !fi.IsDir() {
			paths = append(paths, a)
			continue
		}
		for _, pat := range []string{"*.yaml", "*.yml"} {
			m, err := filepath.Glob(filepath.Join(a, pat))
			if err != nil {
				return nil, errors.Wrapf(err, "could not list %s", a)
			}
			paths = append(paths, m...)
		}
	}
	return paths, nil
}

// replayAll replays every trace in paths, logs each mismatch and a summary,
// and reports whether every trace replayed as expected.
func replayAll(paths []string, l logging.Logger, level int8) bool {
	ok := true
	var results []*trace.Result
	for _, p := range paths {
		res, err := replay(p, l, level)
		if err != nil {
			ok = false
			continue
		}
		if !res.OK() {
			ok = false
		}
		results = append(results, res)
	}
	s := trace.Summarize(results...)
	l.Info("replay complete",
		"traces", s.Traces,
		"steps", s.Steps,
		"operations", s.Operations,
		"mismatches", s.Mismatches,
		"diagnostics", s.Diagnostics,
		"refsMean", s.RefsMean,
		"refsStdDev", s.RefsStdDev,
		"diagMean", s.DiagMean,
		"diagStdDev", s.DiagStdDev,
	)
	for k, n := range s.Kinds {
		l.Debug("diagnostic count", "kind", k.String(), "class", k.Class().String(), "count", n)
	}
	return ok
}

func replay(path string, l logging.Logger, level int8) (*trace.Result, error) {
	res, err := trace.ReplayFile(path, l, level)
	if err != nil {
		l.Error(pkg+"could not replay trace", "path", path, "error", err.Error())
		return nil, err
	}
	for _, o := range res.Mismatches() {
		detail := "none"
		if o.Err != nil {
			detail = o.Err.Error()
		}
		l.Error(pkg+"unexpected diagnostics", "trace", res.Name, "step", o.Step, "call", o.Call,
			"want", fmt.Sprint(o.Want), "got", fmt.Sprint(o.Got()), "detail", detail)
	}
	if res.OK() {
		l.Info("trace replayed", "trace", res.Name, "steps", len(res.Outcomes))
	}
	return res, nil
}

// watchTraces replays a trace each time it is written. It watches the
// directories holding the traces so that editors which replace files on
// save are followed.
func watchTraces(paths []string, l logging.Logger, level int8) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create watcher")
	}
	defer w.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrap(err, "could not resolve trace path")
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		err = w.Add(dir)
		if err != nil {
			return errors.Wrapf(err, "could not watch %s", dir)
		}
		dirs[dir] = true
	}
	l.Info("watching traces", "files", len(watched), "dirs", len(dirs))

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[ev.Name] || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			l.Debug("trace changed", "path", ev.Name, "op", ev.Op.String())
			replay(ev.Name, l, level)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warning(pkg+"watcher error", "error", err.Error())
		}
	}
}
