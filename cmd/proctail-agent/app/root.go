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

// Package app hosts the proctail-agent cobra command tree.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rabbitstack/proctail/pkg/config"
)

// version is stamped by the release build via -ldflags; left as "dev" in
// a plain build, matching the teacher's own version-string fallback.
var version = "dev"

// RootCmd is the entry point cobra.Command. Subcommands register
// themselves in their own init().
var RootCmd = &cobra.Command{
	Use:   "proctail-agent",
	Short: "ProcTail kernel-level file and process observability agent",
}

func init() {
	config.AddFlags(RootCmd.PersistentFlags())
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	return config.Load(v, cmd.Flags())
}
