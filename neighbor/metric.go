package neighbor

import (
	"fmt"
	"math"
)

// Metric 是建索引时确定的距离度量。
type Metric string

const (
	// MetricEuclidean 欧氏距离（默认，与离线 sklearn KNN 一致）
	MetricEuclidean Metric = "euclidean"
	// MetricCosine 余弦距离 = 1 - 余弦相似度；零向量与任何向量的距离为 1
	MetricCosine Metric = "cosine"
)

// ParseMetric 解析度量名称，空字符串返回默认的欧氏距离。
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "":
		return MetricEuclidean, nil
	case MetricEuclidean, MetricCosine:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Distance 计算两个等长向量的距离，值越小越相似。
func (m Metric) Distance(a, b []float64) float64 {
	switch m {
	case MetricCosine:
		return cosineDistance(a, b)
	default:
		return euclideanDistance(a, b)
	}
}

// euclideanDistance 计算欧氏距离
func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// cosineDistance 计算余弦距离
func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
