package main

import (
	"flag"
	"fmt"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/onnx"
)

func main() {
	// set to use a video capture device 0
	deviceID := flag.Int("device", 0, "video capture device ID")
	modelPath := flag.String("model", "yolov5s.onnx", "path to YOLO ONNX model file")
	flag.Parse()

	// open webcam
	webcam, err := gocv.OpenVideoCapture(*deviceID)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer webcam.Close()

	// open display window
	window := gocv.NewWindow("Object Detect")
	defer window.Close()

	// prepare image matrix
	img := gocv.NewMat()
	defer img.Close()

	// color for the rect when objects detected
	green := color.RGBA{0, 255, 0, 0}

	// load the detector
	detector, err := onnx.NewDetector(onnx.Config{ModelPath: *modelPath})
	if err != nil {
		fmt.Printf("Error loading model %s: %v\n", *modelPath, err)
		return
	}
	defer detector.Close()

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	fmt.Printf("start reading camera device: %v\n", *deviceID)
	for {
		if ok := webcam.Read(&img); !ok {
			fmt.Printf("cannot read device %v\n", *deviceID)
			return
		}
		if img.Empty() {
			continue
		}

		// Update FPS calculation
		frameCount++
		currentTime := time.Now()
		elapsed := currentTime.Sub(lastTime).Seconds()

		// Calculate FPS every second
		if elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = currentTime
		}

		// detect objects
		detections, err := detector.Detect(img)
		if err != nil {
			fmt.Printf("detection error: %v\n", err)
			continue
		}
		fmt.Printf("found %d objects | FPS: %.2f\n", len(detections), fps)

		// draw a rectangle and label around each object on the original image
		for _, det := range detections {
			gocv.Rectangle(&img, det.Box, green, 3)
			gocv.PutText(&img, det.String(), det.Box.Min, gocv.FontHersheyPlain, 1.2, green, 2)
		}

		// show the image in the window, and wait 1 millisecond
		window.IMShow(img)
		window.WaitKey(1)
	}
}
