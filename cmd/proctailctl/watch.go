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

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rabbitstack/proctail/pkg/ipc"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watch targets",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <pid> <tag>",
	Short: "Attach a tag to a running process",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		pid, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid pid %q: %w", args[0], err)
		}
		_, err = call(ipc.Request{RequestType: ipc.ReqAddWatchTarget, ProcessID: uint32(pid), TagName: args[1]})
		if err != nil {
			return err
		}
		fmt.Printf("watching pid %d as %q\n", pid, args[1])
		return nil
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <tag>",
	Short: "Detach a tag from every process it's attached to",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := call(ipc.Request{RequestType: ipc.ReqRemoveWatchTarget, TagName: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("removed tag %q\n", args[0])
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active watch targets",
	RunE: func(*cobra.Command, []string) error {
		resp, err := call(ipc.Request{RequestType: ipc.ReqGetWatchTargets})
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"PID", "Tag", "Process", "Path", "Started"})
		for _, w := range resp.WatchTargets {
			t.AppendRow(table.Row{w.ProcessID, w.TagName, w.ProcessName, w.ExecutablePath, w.StartTime})
		}
		t.Render()
		return nil
	},
}

func init() {
	watchCmd.AddCommand(watchAddCmd, watchRemoveCmd, watchListCmd)
}
