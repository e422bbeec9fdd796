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

	"github.com/spf13/cobra"

	"github.com/rabbitstack/proctail/pkg/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the agent's current status",
	RunE: func(*cobra.Command, []string) error {
		resp, err := call(ipc.Request{RequestType: ipc.ReqGetStatus})
		if err != nil {
			return err
		}
		fmt.Printf("running:            %v\n", resp.IsRunning)
		fmt.Printf("etw monitoring:     %v\n", resp.IsEtwMonitoring)
		fmt.Printf("pipe server:        %v\n", resp.IsPipeServerRunning)
		fmt.Printf("active watch targets: %d\n", resp.ActiveWatchTargets)
		fmt.Printf("tags:               %d\n", resp.TotalTags)
		fmt.Printf("events:             %d\n", resp.TotalEvents)
		fmt.Printf("estimated memory:   %.2f MB\n", resp.EstimatedMemoryUsageMB)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the agent's health check",
	RunE: func(*cobra.Command, []string) error {
		resp, err := call(ipc.Request{RequestType: ipc.ReqHealthCheck})
		if err != nil {
			return err
		}
		fmt.Println(resp.Status)
		return nil
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Request a graceful agent shutdown",
	RunE: func(*cobra.Command, []string) error {
		_, err := call(ipc.Request{RequestType: ipc.ReqShutdown})
		if err != nil {
			return err
		}
		fmt.Println("shutdown requested")
		return nil
	},
}
