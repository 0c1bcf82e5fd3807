package support

import (
	"fmt"
	"image/color"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/netthinne/internal/testutil"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// RegisterSceneSteps registers the steps that provide the input image.
func (testCtx *TestContext) RegisterSceneSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the "([^"]*)" scene$`, testCtx.theScene)
	sc.Step(`^a solid gray (\d+)x(\d+) image$`, testCtx.aSolidGrayImage)
	sc.Step(`^a (\d+)x(\d+) pixel buffer holding (\d+) bytes$`, testCtx.aPixelBufferHoldingBytes)
}

func (testCtx *TestContext) theScene(name string) error {
	cfg, ok := testutil.Scenes()[name]
	if !ok {
		return fmt.Errorf("unknown scene %q", name)
	}
	testCtx.Image = testutil.GenerateScene(cfg)
	return nil
}

func (testCtx *TestContext) aSolidGrayImage(width, height int) error {
	testCtx.Image = testutil.SolidImage(width, height, color.Gray{Y: 128})
	return nil
}

func (testCtx *TestContext) aPixelBufferHoldingBytes(width, height, n int) error {
	testCtx.Pixels = &utils.PixelBuffer{Width: width, Height: height, Pix: make([]byte, n)}
	return nil
}
