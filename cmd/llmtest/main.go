package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/cliqpat/voicereports/cmd/mainconfig"
	appconfig "github.com/cliqpat/voicereports/internal/config"
	"github.com/cliqpat/voicereports/internal/report"
)

const sampleTranscript = `Patient: Hi, I've had a dull headache for three days now.
Ai: I'm sorry to hear that. Is the pain constant or does it come and go?
Patient: It comes and goes, mostly in the afternoon. I've been taking ibuprofen.
Ai: Any nausea, vision changes, or sensitivity to light?
Patient: No, none of that. Just tired.`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	call := report.CallContext{
		PatientName:   "Test Patient",
		AppointmentID: "llmtest",
		CallDuration:  "120",
	}

	fmt.Println("LLM Provider Test")
	fmt.Println("-----------------")

	if cfg.GeminiAPIKey != "" {
		fmt.Println("\n[1] Testing Gemini...")
		gemini, err := report.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			defer gemini.Close()
			runGenerator(ctx, gemini, cfg.GeminiModelID, call)
		}
	} else {
		fmt.Println("\n[1] Skipping Gemini test (GEMINI_API_KEY not set)")
	}

	if cfg.BedrockModelID != "" {
		fmt.Println("\n[2] Testing Bedrock...")
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fmt.Printf("    failed to load AWS config: %v\n", err)
			os.Exit(1)
		}
		bedrock := report.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		runGenerator(ctx, bedrock, cfg.BedrockModelID, call)
	} else {
		fmt.Println("\n[2] Skipping Bedrock test (BEDROCK_MODEL_ID not set)")
	}
}

func runGenerator(ctx context.Context, llm report.LLMClient, model string, call report.CallContext) {
	gen := report.NewGenerator(report.GeneratorConfig{
		LLM:       llm,
		Model:     model,
		MaxTokens: 1024,
		Timeout:   60 * time.Second,
	})

	start := time.Now()
	text, err := gen.Generate(ctx, sampleTranscript, call)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Printf("    generation failed (%v): %v\n", elapsed, err)
		return
	}
	fmt.Printf("    report generated in %v:\n\n%s\n", elapsed, text)
}
