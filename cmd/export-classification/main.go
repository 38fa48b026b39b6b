package main

import (
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/access"
)

// 生成数据分级与权限矩阵的合规报表（Excel）
func main() {
	output := flag.String("o", "compliance-report.xlsx", "output file path")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	matrix := access.NewMatrix(access.DefaultRegistry(), logger)
	data, err := access.GenerateComplianceWorkbook(matrix)
	if err != nil {
		log.Fatalf("Failed to generate workbook: %v", err)
	}

	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	log.Printf("Wrote %s (%d bytes)", *output, len(data))
}
