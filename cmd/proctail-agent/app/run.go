/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ProcTail agent and block until it's stopped",
	RunE:  run,
}

func init() {
	RootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return kerrors.Fatal(err, "failed to load configuration")
	}

	setupLogging(cfg.LogSettings.Level, cfg.LogSettings.File, cfg.LogSettings.MaxSizeMB, cfg.LogSettings.MaxBackups, cfg.LogSettings.MaxAgeDays)

	if cfg.SecuritySettings.RequireAdministrator {
		if err := checkAdministrator(); err != nil {
			return kerrors.Fatal(err, "administrator privileges are required to open a kernel trace session")
		}
	}

	orch := orchestrator.New(cfg, newProber())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return kerrors.Fatal(err, "failed to start agent")
	}
	log.Infof("proctail-agent started, pipe=%s", cfg.PipeSettings.PipeName)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutdown signal received, stopping")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HandlerTimeout())
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil {
		return pkgerrors.Wrap(err, "agent did not stop cleanly")
	}
	log.Info("proctail-agent stopped")
	return nil
}

func setupLogging(level, file string, maxSizeMB, maxBackups, maxAgeDays int) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if file == "" {
		return
	}
	hook := lfshook.NewHook(lfshook.WriterMap{
		log.InfoLevel:  &lumberjack.Logger{Filename: file, MaxSize: maxSizeMB, MaxBackups: maxBackups, MaxAge: maxAgeDays},
		log.WarnLevel:  &lumberjack.Logger{Filename: file, MaxSize: maxSizeMB, MaxBackups: maxBackups, MaxAge: maxAgeDays},
		log.ErrorLevel: &lumberjack.Logger{Filename: file, MaxSize: maxSizeMB, MaxBackups: maxBackups, MaxAge: maxAgeDays},
		log.FatalLevel: &lumberjack.Logger{Filename: file, MaxSize: maxSizeMB, MaxBackups: maxBackups, MaxAge: maxAgeDays},
	}, &log.TextFormatter{FullTimestamp: true})
	log.AddHook(hook)
}

