// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Get / Set Features dword encoding.

package nvme

import (
	"fmt"
)

// GetFeatureCDW10 encodes the feature identifier and select field of a Get Features command.
func GetFeatureCDW10(fid, sel uint8) uint32 {
	return CDW10GetFeaturesLayout.Encode(map[string]uint32{"FID": uint32(fid), "SEL": uint32(sel)})
}

// SetFeatureCDW10 encodes the feature identifier and save bit of a Set Features command.
func SetFeatureCDW10(fid uint8, save bool) uint32 {
	return CDW10SetFeaturesLayout.Encode(map[string]uint32{"FID": uint32(fid), "SV": b(save)})
}

// FeatureSupported reports whether fid has a known dword 11 layout that this package can get and
// set through the protocol-specific property interface.
func FeatureSupported(fid uint8) bool {
	switch {
	case fid >= FEATURE_ARBITRATION && fid <= FEATURE_AUTONOMOUS_POWER_STATE_TRANSITION:
		return true
	case fid == FEATURE_HOST_CONTROLLED_THERMAL_MANAGEMENT:
		return true
	}

	return false
}

// EncodeSetFeatureValue converts a user supplied value into the dword 11 layout of feature fid.
// For the volatile write cache the value is treated as a boolean and placed in the WCE bit; every
// other feature takes the raw dword.
func EncodeSetFeatureValue(fid uint8, raw uint32) uint32 {
	if fid == FEATURE_VOLATILE_WRITE_CACHE {
		return FeatureLayouts[fid].Encode(map[string]uint32{"WCE": b(raw != 0)})
	}

	return raw
}

type FieldValue struct {
	Name  string
	Value uint32
}

// FeatureValue is a decoded feature dword.
type FeatureValue struct {
	FID    uint8
	Name   string
	Raw    uint32
	Fields []FieldValue
}

func (f FeatureValue) String() string {
	s := fmt.Sprintf("%s (FID %#02x): %#08x", f.Name, f.FID, f.Raw)
	for _, fv := range f.Fields {
		s += fmt.Sprintf(", %s=%d", fv.Name, fv.Value)
	}

	return s
}

// Field returns the value of the named field, and whether the feature has such a field.
func (f FeatureValue) Field(name string) (uint32, bool) {
	for _, fv := range f.Fields {
		if fv.Name == name {
			return fv.Value, true
		}
	}

	return 0, false
}

// DecodeFeature splits a feature dword into its named fields. Features without a known layout are
// returned with the raw value only.
func DecodeFeature(fid uint8, value uint32) FeatureValue {
	fv := FeatureValue{FID: fid, Name: FeatureName(fid), Raw: value}

	if fv.Name == "" {
		fv.Name = fmt.Sprintf("Feature %#02x", fid)
	}

	if l, ok := FeatureLayouts[fid]; ok {
		for _, f := range l.Fields {
			fv.Fields = append(fv.Fields, FieldValue{f.Name, f.Get(value)})
		}
	}

	return fv
}

type Arbitration struct {
	Burst                uint8 // Arbitration Burst, log2 of commands
	LowPriorityWeight    uint8
	MediumPriorityWeight uint8
	HighPriorityWeight   uint8
}

func DecodeArbitration(v uint32) Arbitration {
	l := FeatureLayouts[FEATURE_ARBITRATION]
	return Arbitration{
		Burst:                uint8(l.Get(v, "AB")),
		LowPriorityWeight:    uint8(l.Get(v, "LPW")),
		MediumPriorityWeight: uint8(l.Get(v, "MPW")),
		HighPriorityWeight:   uint8(l.Get(v, "HPW")),
	}
}

func (a Arbitration) Encode() uint32 {
	return FeatureLayouts[FEATURE_ARBITRATION].Encode(map[string]uint32{
		"AB": uint32(a.Burst), "LPW": uint32(a.LowPriorityWeight),
		"MPW": uint32(a.MediumPriorityWeight), "HPW": uint32(a.HighPriorityWeight),
	})
}

type NumberOfQueues struct {
	Submission uint16 // 0's based
	Completion uint16 // 0's based
}

func DecodeNumberOfQueues(v uint32) NumberOfQueues {
	l := FeatureLayouts[FEATURE_NUMBER_OF_QUEUES]
	return NumberOfQueues{uint16(l.Get(v, "NSQ")), uint16(l.Get(v, "NCQ"))}
}

func (q NumberOfQueues) Encode() uint32 {
	return FeatureLayouts[FEATURE_NUMBER_OF_QUEUES].Encode(map[string]uint32{
		"NSQ": uint32(q.Submission), "NCQ": uint32(q.Completion),
	})
}

type TemperatureThreshold struct {
	Threshold uint16 // Kelvin
	Sensor    uint8  // 0 composite, 1-8 temperature sensor
	Type      uint8  // 0 over temperature, 1 under temperature
}

func DecodeTemperatureThreshold(v uint32) TemperatureThreshold {
	l := FeatureLayouts[FEATURE_TEMPERATURE_THRESHOLD]
	return TemperatureThreshold{
		Threshold: uint16(l.Get(v, "TMPTH")),
		Sensor:    uint8(l.Get(v, "TMPSEL")),
		Type:      uint8(l.Get(v, "THSEL")),
	}
}

func (t TemperatureThreshold) Encode() uint32 {
	return FeatureLayouts[FEATURE_TEMPERATURE_THRESHOLD].Encode(map[string]uint32{
		"TMPTH": uint32(t.Threshold), "TMPSEL": uint32(t.Sensor), "THSEL": uint32(t.Type),
	})
}

// VolatileWriteCacheEnabled decodes the WCE bit of the volatile write cache feature.
func VolatileWriteCacheEnabled(v uint32) bool {
	return FeatureLayouts[FEATURE_VOLATILE_WRITE_CACHE].Flag(v, "WCE")
}

// AsyncEventConfig returns the notification categories enabled in an async event config dword.
func AsyncEventConfig(v uint32) map[string]bool {
	l := FeatureLayouts[FEATURE_ASYNC_EVENT_CONFIG]
	m := make(map[string]bool, len(l.Fields))

	for _, f := range l.Fields {
		m[f.Name] = f.Get(v) != 0
	}

	return m
}
