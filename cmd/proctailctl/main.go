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

// Command proctailctl is a thin reference client exercising the wire
// protocol pkg/ipc serves. It is not a production CLI — no retries, no
// connection pooling, one request per invocation — it exists to
// demonstrate the protocol contract end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pipeName string

var rootCmd = &cobra.Command{
	Use:   "proctailctl",
	Short: "Reference client for the ProcTail agent's named-pipe protocol",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipeName, "pipe-name", "ProcTailIPC", "named pipe endpoint name")
	rootCmd.AddCommand(watchCmd, eventsCmd, statusCmd, healthCmd, shutdownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
