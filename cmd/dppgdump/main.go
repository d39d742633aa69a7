// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// dppgdump replays a recorded D-PPG telemetry session through the
// decoder, prints the recovery parameters of each waveform block, and
// optionally exports the decoded data as CSV, JSON or EDF.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/urfave/cli/v2"

	"github.com/openvasc/dppg"
)

func main() {
	app := &cli.App{
		Name:      "dppgdump",
		Usage:     "decode D-PPG telemetry dumps and compute waveform parameters",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "capture",
				Usage: "input is a sniffer capture file (timestamped records) rather than a raw byte dump",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "write decoded samples to a CSV `FILE`",
			},
			&cli.StringFlag{
				Name:  "json",
				Usage: "write blocks and parameters to a JSON `FILE`",
			},
			&cli.StringFlag{
				Name:  "edf",
				Usage: "write one EDF `FILE` per block (index appended to the name)",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("dppgdump failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one input file", 2)
	}

	raw, err := loadInput(c.Args().First(), c.Bool("capture"))
	if err != nil {
		return err
	}

	dec := dppg.NewDecoder()
	dec.Feed(raw)
	blocks := dec.Blocks()
	slog.Info("decoded input", "bytes", len(raw), "blocks", len(blocks), "unparsed", dec.Pending())

	for i, b := range blocks {
		printBlock(i, b, dppg.ComputeParameters(b))
	}

	if path := c.String("csv"); path != "" {
		if err := writeCSV(path, blocks); err != nil {
			return fmt.Errorf("error writing CSV: %w", err)
		}
		slog.Info("wrote CSV", "path", path)
	}
	if path := c.String("json"); path != "" {
		if err := writeJSON(path, blocks); err != nil {
			return fmt.Errorf("error writing JSON: %w", err)
		}
		slog.Info("wrote JSON", "path", path)
	}
	if path := c.String("edf"); path != "" {
		for i, b := range blocks {
			name := indexedPath(path, i)
			if err := writeEDF(name, b); err != nil {
				return fmt.Errorf("error writing EDF: %w", err)
			}
			slog.Info("wrote EDF", "path", name)
		}
	}
	return nil
}

func loadInput(path string, capture bool) ([]byte, error) {
	if !capture {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading input: %w", err)
		}
		return raw, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening capture: %w", err)
	}
	defer f.Close()

	chunks, err := dppg.ReadCapture(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing capture: %w", err)
	}
	return dppg.ReceivedBytes(chunks), nil
}

func printBlock(i int, b *dppg.SampleBlock, p *dppg.PPGParameters) {
	exam := "-"
	if b.ExamID != 0 {
		exam = strconv.Itoa(int(b.ExamID))
	}
	fmt.Printf("block %d: %s, exam %s, %d samples (%d trimmed), %.1fs\n",
		i, b.LabelDescription(), exam, len(b.Samples), b.Trimmed, b.Duration())

	if p == nil {
		fmt.Println("  parameters: —")
		return
	}
	tau := "—"
	if p.TauValid {
		tau = fmt.Sprintf("%.1fs", p.Tau)
	}
	fmt.Printf("  To=%.1fs Th=%.1fs Ti=%.0fs Vo=%.1f%% Fo=%.0f%%·s tau=%s zone=%s\n",
		p.To, p.Th, p.Ti, p.Vo, p.Fo, tau, dppg.DiagnosticZone(p.To, p.Vo))
}

func writeCSV(path string, blocks []*dppg.SampleBlock) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"block", "exam", "label", "sample_index", "value"}); err != nil {
		return err
	}
	for i, b := range blocks {
		exam := ""
		if b.ExamID != 0 {
			exam = strconv.Itoa(int(b.ExamID))
		}
		for j, v := range b.Samples {
			rec := []string{
				strconv.Itoa(i),
				exam,
				b.LabelDescription(),
				strconv.Itoa(j),
				strconv.Itoa(int(v)),
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

type jsonParameters struct {
	To  float64  `json:"To_s"`
	Th  float64  `json:"Th_s"`
	Ti  float64  `json:"Ti_s"`
	Vo  float64  `json:"Vo_percent"`
	Fo  float64  `json:"Fo_percent_s"`
	Tau *float64 `json:"tau_s,omitempty"`

	PeakIndex int     `json:"peak_index"`
	Baseline  float64 `json:"baseline_adc"`
	Peak      float64 `json:"peak_adc"`
}

type jsonBlock struct {
	Index      int             `json:"index"`
	Exam       uint16          `json:"exam,omitempty"`
	Label      string          `json:"label"`
	Samples    []uint16        `json:"samples"`
	Parameters *jsonParameters `json:"parameters,omitempty"`
}

func writeJSON(path string, blocks []*dppg.SampleBlock) error {
	out := make([]jsonBlock, 0, len(blocks))
	for i, b := range blocks {
		jb := jsonBlock{
			Index:   i,
			Exam:    b.ExamID,
			Label:   b.LabelDescription(),
			Samples: b.Samples,
		}
		if p := dppg.ComputeParameters(b); p != nil {
			jp := &jsonParameters{
				To:        p.To,
				Th:        p.Th,
				Ti:        p.Ti,
				Vo:        p.Vo,
				Fo:        p.Fo,
				PeakIndex: p.PeakIndex,
				Baseline:  p.BaselineValue,
				Peak:      p.PeakValue,
			}
			if p.TauValid {
				tau := p.Tau
				jp.Tau = &tau
			}
			jb.Parameters = jp
		}
		out = append(out, jb)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeEDF stores one block as a single-signal EDF file so the waveform
// can be inspected in standard PSG viewers.
func writeEDF(path string, b *dppg.SampleBlock) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X",
		RecordingID:        fmt.Sprintf("D-PPG exam %d", b.ExamID),
		StartTime:          time.Now().UTC(),
		DataRecordDuration: time.Duration(float64(len(b.Samples)) / dppg.SampleRate * float64(time.Second)),
		SignalCount:        1,
		Signals: []edf.SignalHeader{
			{
				Label:             b.LabelDescription(),
				TransducerType:    "D-PPG probe",
				PhysicalDimension: "adc",
				PhysicalMin:       0,
				PhysicalMax:       4095,
				DigitalMin:        0,
				DigitalMax:        4095,
				SamplesPerRecord:  len(b.Samples),
			},
		},
	}

	ew, err := edf.Create(f, hdr)
	if err != nil {
		return err
	}

	record := make([]float64, len(b.Samples))
	for i, v := range b.Samples {
		record[i] = float64(v)
	}
	if err := ew.WriteRecord([][]float64{record}); err != nil {
		return err
	}
	return ew.Close()
}

func indexedPath(path string, i int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%02d%s", strings.TrimSuffix(path, ext), i, ext)
}
