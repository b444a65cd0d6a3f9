package types

import (
	"go.uber.org/atomic"
)

type StatisticsItem struct {
	Count uint64 `json:",omitempty"`
	Bytes uint64 `json:",omitempty"`
}

type CountersItem struct {
	Count atomic.Uint64
	Bytes atomic.Uint64
}

func (c *CountersItem) Increment(msgSize uint64) {
	c.Count.Inc()
	c.Bytes.Add(msgSize)
}

func (c *CountersItem) ToStats() StatisticsItem {
	return StatisticsItem{
		Count: c.Count.Load(),
		Bytes: c.Bytes.Load(),
	}
}

type DecoderStatistics struct {
	PacketsReceived   StatisticsItem
	BytesSubmitted    StatisticsItem
	PacketsRetired    StatisticsItem
	FrameBuffersBound StatisticsItem
	FramesOutput      StatisticsItem
	BackpressurePolls StatisticsItem
}

type DecoderCounters struct {
	PacketsReceived   CountersItem
	BytesSubmitted    CountersItem
	PacketsRetired    CountersItem
	FrameBuffersBound CountersItem
	FramesOutput      CountersItem
	BackpressurePolls CountersItem
}

func (c *DecoderCounters) ToStats() DecoderStatistics {
	return DecoderStatistics{
		PacketsReceived:   c.PacketsReceived.ToStats(),
		BytesSubmitted:    c.BytesSubmitted.ToStats(),
		PacketsRetired:    c.PacketsRetired.ToStats(),
		FrameBuffersBound: c.FrameBuffersBound.ToStats(),
		FramesOutput:      c.FramesOutput.ToStats(),
		BackpressurePolls: c.BackpressurePolls.ToStats(),
	}
}

type DownloadStatistics struct {
	FramesDownloaded StatisticsItem
	PlanesReleased   StatisticsItem
}

type DownloadCounters struct {
	FramesDownloaded CountersItem
	PlanesReleased   CountersItem
}

func (c *DownloadCounters) ToStats() DownloadStatistics {
	return DownloadStatistics{
		FramesDownloaded: c.FramesDownloaded.ToStats(),
		PlanesReleased:   c.PlanesReleased.ToStats(),
	}
}
