package main

import (
	"fmt"
	"log"
	"time"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/models/yolo"
)

// A miniature, randomly initialized detection head. Three strided convs
// turn one synthetic frame into raw per-scale outputs, which then flow
// through target assignment, loss, decoding, and suppression exactly as
// full-size model outputs would.

var (
	imgSize    = 64
	channels   = 3
	numClasses = 3
	iterations = 5
)

func main() {
	head, err := yolo.NewHead(numClasses, []int{8, 16, 32}, [][]float32{
		{6, 8, 12, 10, 16, 20},
		{24, 20, 32, 40, 48, 36},
		{44, 56, 56, 40, 60, 60},
	})
	if err != nil {
		log.Fatalf("Head setup failed: %s", err)
	}
	grids := head.GridSizes(imgSize, imgSize)

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(1, channels, imgSize, imgSize), G.WithName("input"))

	outs := make([]*G.Node, head.Scales())
	for i, stride := range head.Strides {
		outs[i] = headScale(g, input, head, i, stride)
	}

	machine := G.NewTapeMachine(g)
	defer machine.Close()

	frame := tensor.New(
		tensor.WithShape(1, channels, imgSize, imgSize),
		tensor.WithBacking(syntheticFrame()),
	)

	// Two labeled boxes, normalized xywh, both well matched by an anchor.
	targets := tensor.New(tensor.WithShape(2, 6), tensor.WithBacking([]float32{
		0, 0, 0.25, 0.25, 0.20, 0.30,
		0, 1, 0.70, 0.60, 0.40, 0.35,
	}))

	hyp := yolo.DefaultHyp()
	cfg := postprocess.DefaultConfig()

	for it := 0; it < iterations; it++ {
		if err := G.Let(input, frame); err != nil {
			log.Fatalf("Let failed: %s", err)
		}
		st := time.Now()
		if err := machine.RunAll(); err != nil {
			log.Fatalf("Can't run the machine: %s", err)
		}
		forward := time.Since(st)

		preds := make([]*tensor.Dense, head.Scales())
		for i, out := range outs {
			preds[i] = headLayout(head, out.Value().(*tensor.Dense), grids[i])
		}

		total, bd, err := yolo.ComputeLoss(head, hyp, preds, targets)
		if err != nil {
			log.Fatalf("Loss failed: %s", err)
		}
		flat, err := yolo.Decode(head, preds)
		if err != nil {
			log.Fatalf("Decode failed: %s", err)
		}
		res, err := postprocess.NonMaxSuppression(flat, cfg)
		if err != nil {
			log.Fatalf("Suppression failed: %s", err)
		}

		fmt.Printf("%s forward=%dµs loss=%.4f box=%.4f obj=%.4f cls=%.4f detections=%d potential=%.0ffps~\n",
			time.Now().UTC().Format(time.RFC3339), forward.Microseconds(),
			total, bd.Box, bd.Obj, bd.Cls, len(res.Images[0]),
			1.0/forward.Seconds())

		if it == iterations-1 {
			for _, det := range res.Images[0] {
				fmt.Printf("\tclass=%d score=%.3f box=[%.1f %.1f %.1f %.1f]\n",
					det.Class, det.Score,
					det.Box[0], det.Box[1], det.Box[2], det.Box[3])
			}
		}
		machine.Reset()
	}
}

// headScale builds one scale of the head: a stride-sized conv collapses
// each cell's patch into anchors*outputs channels, then a 1x1 conv
// mixes them. Weights are Glorot noise, so predictions are arbitrary
// but well-formed.
func headScale(g *G.ExprGraph, input *G.Node, head *yolo.Head, scale, stride int) *G.Node {
	co := head.AnchorsPerScale() * head.Outputs()
	w := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(co, channels, stride, stride),
		G.WithName(fmt.Sprintf("patch_%d", scale)),
		G.WithInit(G.GlorotN(1.0)))
	conv := G.Must(G.Conv2d(input, w, tensor.Shape{stride, stride},
		[]int{0, 0}, []int{stride, stride}, []int{1, 1}))

	mix := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(co, co, 1, 1),
		G.WithName(fmt.Sprintf("mix_%d", scale)),
		G.WithInit(G.GlorotN(1.0)))
	return G.Must(G.Conv2d(G.Must(G.Rectify(conv)), mix, tensor.Shape{1, 1},
		[]int{0, 0}, []int{1, 1}, []int{1, 1}))
}

// headLayout rearranges one conv output (1, anchors*outputs, gh, gw)
// into the assignment layout (1, anchors, gh, gw, outputs).
func headLayout(head *yolo.Head, raw *tensor.Dense, grid yolo.GridSize) *tensor.Dense {
	na, no := head.AnchorsPerScale(), head.Outputs()
	src := raw.Data().([]float32)
	dst := make([]float32, na*grid.H*grid.W*no)
	for a := 0; a < na; a++ {
		for c := 0; c < no; c++ {
			for j := 0; j < grid.H; j++ {
				for i := 0; i < grid.W; i++ {
					dst[((a*grid.H+j)*grid.W+i)*no+c] = src[((a*no+c)*grid.H+j)*grid.W+i]
				}
			}
		}
	}
	return tensor.New(
		tensor.WithShape(1, na, grid.H, grid.W, no),
		tensor.WithBacking(dst),
	)
}

// syntheticFrame fills a CHW buffer with a smooth gradient, standing in
// for a decoded camera frame.
func syntheticFrame() []float32 {
	data := make([]float32, channels*imgSize*imgSize)
	for c := 0; c < channels; c++ {
		for y := 0; y < imgSize; y++ {
			for x := 0; x < imgSize; x++ {
				data[(c*imgSize+y)*imgSize+x] = float32(x+y+c*imgSize) / float32(3*imgSize)
			}
		}
	}
	return data
}
