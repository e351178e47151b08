package pipeline

import (
	"context"
	"image"
	"math"
	"testing"

	"go.viam.com/rdk/logging"

	"imagetracker/internal/synth"
	"imagetracker/tracking"
)

func testPipeline(t *testing.T) *CPU {
	t.Helper()
	return New(DefaultConfig(), logging.NewTestLogger(t))
}

func detectParams() tracking.DetectParams {
	return tracking.DetectParams{MaxKeypoints: 256, Quality: 0.05}
}

func TestDetect_FindsCornersOnTexture(t *testing.T) {
	pipe := testPipeline(t)
	img := synth.TexturedImage(320, 240, 1)

	kps, err := pipe.Detect(context.Background(), img, detectParams())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(kps) < 25 {
		t.Fatalf("found %d keypoints on a spot texture, want >= 25", len(kps))
	}
	if len(kps) > 256 {
		t.Errorf("keypoint cap exceeded: %d", len(kps))
	}

	border := float64(DefaultConfig().BRIEF.PatchSize/2 + 1)
	for _, kp := range kps {
		if kp.Position.X < border || kp.Position.Y < border ||
			kp.Position.X >= 320-border || kp.Position.Y >= 240-border {
			t.Fatalf("keypoint %v inside the descriptor border", kp.Position)
		}
		if len(kp.Descriptor) != DescriptorSize {
			t.Fatalf("descriptor length %d, want %d", len(kp.Descriptor), DescriptorSize)
		}
		if kp.ImageIndex != -1 {
			t.Fatalf("frame keypoint carries image index %d", kp.ImageIndex)
		}
	}
	t.Logf("%d keypoints", len(kps))
}

func TestDetect_BorderClip(t *testing.T) {
	pipe := testPipeline(t)
	img := synth.TexturedImage(320, 240, 2)

	p := detectParams()
	p.BorderClip = 60
	kps, err := pipe.Detect(context.Background(), img, p)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for _, kp := range kps {
		if kp.Position.X < 60 || kp.Position.Y < 60 || kp.Position.X >= 260 || kp.Position.Y >= 180 {
			t.Fatalf("keypoint %v inside the clipped border", kp.Position)
		}
	}
}

func TestDetect_FlatImageHasNoKeypoints(t *testing.T) {
	pipe := testPipeline(t)
	flat := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}

	kps, err := pipe.Detect(context.Background(), flat, detectParams())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(kps) != 0 {
		t.Errorf("found %d keypoints on a flat image", len(kps))
	}
}

func TestMatch_SelfMatchIsExact(t *testing.T) {
	pipe := testPipeline(t)
	img := synth.TexturedImage(320, 240, 3)

	kps, err := pipe.Detect(context.Background(), img, detectParams())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(kps) < 20 {
		t.Fatalf("too few keypoints for matching: %d", len(kps))
	}

	pairs, err := pipe.Match(context.Background(), kps, kps, tracking.MatchParams{})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	// Matching a set against itself must pair most keypoints at distance 0;
	// cross-checking drops keypoints whose descriptors collide.
	if len(pairs) < len(kps)/2 {
		t.Errorf("self-match kept %d of %d keypoints", len(pairs), len(kps))
	}
	for _, p := range pairs {
		if p.Distance != 0 {
			t.Fatalf("self-match distance %v, want 0", p.Distance)
		}
		if p.Source.Position != p.Destination.Position {
			t.Fatalf("self-match paired different keypoints: %v vs %v", p.Source.Position, p.Destination.Position)
		}
	}
}

func TestMatch_MaxDistanceCutoff(t *testing.T) {
	pipe := testPipeline(t)
	a := tracking.Keypoint{Descriptor: make([]byte, DescriptorSize)}
	b := tracking.Keypoint{Descriptor: make([]byte, DescriptorSize)}
	for i := range b.Descriptor {
		b.Descriptor[i] = 0xFF
	}

	// Without a cutoff the single cross-checked nearest neighbour survives.
	pairs, err := pipe.Match(context.Background(), []tracking.Keypoint{a}, []tracking.Keypoint{b},
		tracking.MatchParams{})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Distance != 8*DescriptorSize {
		t.Fatalf("uncut match: got %d pair(s), want 1 at distance %d", len(pairs), 8*DescriptorSize)
	}

	pairs, err = pipe.Match(context.Background(), []tracking.Keypoint{a}, []tracking.Keypoint{b},
		tracking.MatchParams{MaxDistance: 10})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("a 256-bit-distant pair survived a cutoff of 10")
	}
}

func TestWarp_IdentityPreservesPixels(t *testing.T) {
	pipe := testPipeline(t)
	img := synth.TexturedImage(64, 48, 4)

	out, err := pipe.Warp(context.Background(), img, tracking.IdentityHomography(), 64, 48)
	if err != nil {
		t.Fatalf("Warp failed: %v", err)
	}
	got, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("Warp returned %T", out)
	}
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if got.Pix[y*got.Stride+x] != img.Pix[y*img.Stride+x] {
				t.Fatalf("identity warp changed pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestWarp_TranslationShiftsContent(t *testing.T) {
	pipe := testPipeline(t)
	img := synth.TexturedImage(64, 48, 5)

	// Shift content 10 pixels right and 6 down.
	out, err := pipe.Warp(context.Background(), img, synth.ShiftHomography(10, 6, 1), 64, 48)
	if err != nil {
		t.Fatalf("Warp failed: %v", err)
	}
	got := out.(*image.Gray)
	for y := 6; y < 48; y++ {
		for x := 10; x < 64; x++ {
			want := img.Pix[(y-6)*img.Stride+(x-10)]
			if got.Pix[y*got.Stride+x] != want {
				t.Fatalf("shifted pixel (%d,%d) = %d, want %d", x, y, got.Pix[y*got.Stride+x], want)
			}
		}
	}
	// Pixels with no source content are black.
	for y := 0; y < 6; y++ {
		for x := 0; x < 64; x++ {
			if got.Pix[y*got.Stride+x] != 0 {
				t.Fatalf("uncovered pixel (%d,%d) = %d, want 0", x, y, got.Pix[y*got.Stride+x])
			}
		}
	}
}

func TestWarp_DetectAndMatchAcrossShift(t *testing.T) {
	pipe := testPipeline(t)
	ctx := context.Background()
	img := synth.TexturedImage(320, 240, 6)

	const dx, dy = 14.0, -9.0
	shifted, err := pipe.Warp(ctx, img, synth.ShiftHomography(dx, dy, 1), 320, 240)
	if err != nil {
		t.Fatalf("Warp failed: %v", err)
	}

	orig, err := pipe.Detect(ctx, img, detectParams())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	moved, err := pipe.Detect(ctx, shifted, detectParams())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	pairs, err := pipe.Match(ctx, moved, orig, tracking.MatchParams{})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(pairs) < 15 {
		t.Fatalf("only %d matches across a pure translation", len(pairs))
	}

	// The dominant displacement across matches must be the applied shift.
	good := 0
	for _, p := range pairs {
		d := p.Destination.Position.Sub(p.Source.Position)
		if math.Abs(d.X-dx) < 1.5 && math.Abs(d.Y-dy) < 1.5 {
			good++
		}
	}
	if float64(good) < 0.7*float64(len(pairs)) {
		t.Errorf("%d/%d matches agree with the (%v, %v) shift", good, len(pairs), dx, dy)
	}
	t.Logf("%d matches, %d consistent with the shift", len(pairs), good)
}
