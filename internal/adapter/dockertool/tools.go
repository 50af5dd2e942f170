package dockertool

import (
	"fmt"
	"path/filepath"

	"elis/backend/internal/config"
)

// Options is the flat tool parameter set. Each tool accepts a subset;
// Validate rejects values outside the tool's accepted range before any
// container is started.
type Options struct {
	Aggressiveness int
	SaveNoiseprint bool
}

// Tool describes one containerized analysis tool and how its fixed CLI
// contract maps mounted paths and options onto docker run arguments.
type Tool struct {
	Name  string
	Image string

	validate func(Options) error
	// args builds the docker arguments after "run --rm": volume mounts,
	// env vars, image and trailing flags. inputPath is the host path of
	// the input file, outputDir the host directory for produced files.
	args func(t Tool, inputPath, outputDir string, opts Options) []string
}

// ErrBadOption wraps option values outside a tool's accepted set.
type ErrBadOption struct {
	Tool   string
	Detail string
}

func (e *ErrBadOption) Error() string {
	return fmt.Sprintf("invalid option for %s: %s", e.Tool, e.Detail)
}

// Extractor mounts the PDF directory on /INPUT and the output directory on
// /OUTPUT, passing both through environment variables:
//
//	docker run --rm \
//	    -v <pdf_dir>:/INPUT -v <out_dir>:/OUTPUT \
//	    -e INPUT_PATH=/INPUT/<file> -e OUTPUT_PATH=/OUTPUT \
//	    pdf-extractor:latest
func Extractor(image string) Tool {
	return Tool{
		Name:     "pdf-extractor",
		Image:    image,
		validate: func(Options) error { return nil },
		args: func(t Tool, inputPath, outputDir string, _ Options) []string {
			inputDir := filepath.Dir(inputPath)
			inputFile := filepath.Base(inputPath)
			return []string{
				"-v", inputDir + ":/INPUT",
				"-v", outputDir + ":/OUTPUT",
				"-e", "INPUT_PATH=/INPUT/" + inputFile,
				"-e", "OUTPUT_PATH=/OUTPUT",
				t.Image,
			}
		},
	}
}

// TamperDetector runs the TruFor container with the same env-var contract
// as the extractor, plus an opt-in noiseprint dump.
func TamperDetector(image string) Tool {
	return Tool{
		Name:     "trufor-detector",
		Image:    image,
		validate: func(Options) error { return nil },
		args: func(t Tool, inputPath, outputDir string, opts Options) []string {
			inputDir := filepath.Dir(inputPath)
			inputFile := filepath.Base(inputPath)
			args := []string{
				"-v", inputDir + ":/INPUT",
				"-v", outputDir + ":/OUTPUT",
				"-e", "INPUT_PATH=/INPUT/" + inputFile,
				"-e", "OUTPUT_PATH=/OUTPUT",
			}
			if opts.SaveNoiseprint {
				args = append(args, "-e", "SAVE_NOISEPRINT=1")
			}
			return append(args, t.Image)
		},
	}
}

// WatermarkRemover mounts the working directory on /workspace and drives
// the tool with flags:
//
//	docker run --rm -v <dir>:/workspace pdf-watermark-removal:latest \
//	    -i /workspace/<in>.pdf -o /workspace/<out>.pdf -m <1|2|3>
func WatermarkRemover(image string) Tool {
	return Tool{
		Name:  "pdf-watermark-removal",
		Image: image,
		validate: func(opts Options) error {
			if opts.Aggressiveness < 1 || opts.Aggressiveness > 3 {
				return &ErrBadOption{
					Tool:   "pdf-watermark-removal",
					Detail: fmt.Sprintf("aggressiveness must be 1, 2 or 3, got %d", opts.Aggressiveness),
				}
			}
			return nil
		},
		args: func(t Tool, inputPath, outputDir string, opts Options) []string {
			inputFile := filepath.Base(inputPath)
			base := inputFile[:len(inputFile)-len(filepath.Ext(inputFile))]
			outputFile := fmt.Sprintf("%s_watermark_removed_m%d.pdf", base, opts.Aggressiveness)
			return []string{
				"-v", filepath.Dir(inputPath) + ":/workspace/in",
				"-v", outputDir + ":/workspace/out",
				t.Image,
				"-i", "/workspace/in/" + inputFile,
				"-o", "/workspace/out/" + outputFile,
				"-m", fmt.Sprintf("%d", opts.Aggressiveness),
			}
		},
	}
}

// Catalog binds the configured images to their tool descriptors, keyed by
// job kind.
func Catalog(cfg *config.Config) map[string]Tool {
	return map[string]Tool{
		"extract_images":   Extractor(cfg.ExtractorImage),
		"detect_tamper":    TamperDetector(cfg.TamperDetectorImage),
		"remove_watermark": WatermarkRemover(cfg.WatermarkImage),
	}
}
