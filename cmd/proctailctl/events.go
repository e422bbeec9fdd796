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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rabbitstack/proctail/pkg/event"
	"github.com/rabbitstack/proctail/pkg/ipc"
)

var eventsMaxCount int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read or clear recorded events for a tag",
}

var eventsGetCmd = &cobra.Command{
	Use:   "get <tag>",
	Short: "Print the recorded events for a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := call(ipc.Request{RequestType: ipc.ReqGetRecordedEvents, TagName: args[0], MaxCount: eventsMaxCount})
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Timestamp", "Kind", "PID", "Detail"})
		for _, e := range resp.Events {
			t.AppendRow(table.Row{e.Timestamp, e.Kind, e.PID, detail(e)})
		}
		t.Render()
		return nil
	},
}

var eventsClearCmd = &cobra.Command{
	Use:   "clear <tag>",
	Short: "Clear the recorded events for a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := call(ipc.Request{RequestType: ipc.ReqClearEvents, TagName: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("cleared events for tag %q\n", args[0])
		return nil
	},
}

func init() {
	eventsGetCmd.Flags().IntVar(&eventsMaxCount, "max-count", 100, "maximum number of events to fetch")
	eventsCmd.AddCommand(eventsGetCmd, eventsClearCmd)
}

func detail(e *event.Event) string {
	switch e.Kind {
	case event.KindFile:
		return fmt.Sprintf("%s %s", e.FileOp, e.FilePath)
	case event.KindProcessStart:
		return fmt.Sprintf("spawned %d (%s)", e.ChildPID, e.ChildImageName)
	case event.KindProcessEnd:
		return fmt.Sprintf("exit code %d", e.ExitCode)
	default:
		return e.EventName
	}
}
