// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// wstedNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	wstedNamespace = "wsted"

	relaySubsystem = "relay"

	// 以下为当前使用的通用标签名。
	commandLabelName = "command"
)

var (
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "connections_open",
			Help:      "number of currently open client connections",
		})

	RoomsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "rooms_live",
			Help:      "number of rooms with at least one member",
		})

	CommandsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "commands_processed_total",
			Help:      "number of protocol commands processed, by command",
		}, []string{commandLabelName})

	LinesUnparseable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "lines_unparseable_total",
			Help:      "number of inbound lines matching no command grammar",
		})

	FilesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "files_stored_total",
			Help:      "number of files stored by upload commands",
		})

	FileBytesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "file_bytes_stored_total",
			Help:      "decoded bytes stored by upload commands",
		})

	FileFetchMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "file_fetch_misses_total",
			Help:      "number of getfile requests for files that do not exist",
		})

	BroadcastSendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wstedNamespace,
			Subsystem: relaySubsystem,
			Name:      "broadcast_send_failures_total",
			Help:      "number of per-recipient enqueue or write failures during broadcasts",
		})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 main 中初始化阶段调用一次。
func Register(r prometheus.Registerer) {
	r.MustRegister(ConnectionsOpen)
	r.MustRegister(RoomsLive)
	r.MustRegister(CommandsProcessed)
	r.MustRegister(LinesUnparseable)
	r.MustRegister(FilesStored)
	r.MustRegister(FileBytesStored)
	r.MustRegister(FileFetchMisses)
	r.MustRegister(BroadcastSendFailures)
	metricRegisterer = r
}
