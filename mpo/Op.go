// Package mpo implements the Maximum-a-Posteriori Policy Optimization
// machinery: the E-step reweighting of sampled actions, the
// dual-variable (temperature and per-dimension alpha) loss, and the
// graph operations the policy loss is assembled from.
package mpo

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the column axis of a matrix, stabilized by the
// per-row maximum.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node) *G.Node {
	max := G.Must(G.Max(logits, 1))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, 1))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// GaussianLogPdf calculates the log of the probability density function
// of actions drawn from a diagonal Gaussian distribution with mean mean
// and standard deviation std.
//
// All arguments are two-dimensional and of the same size m x n: rows
// denote samples in the batch and columns the action dimensions. The
// result is an m-vector of per-row log densities.
func GaussianLogPdf(mean, std, actions *G.Node) *G.Node {
	graph := mean.Graph()
	if graph != std.Graph() || graph != actions.Graph() {
		panic("gaussianlogpdf: all nodes must share the same graph")
	}

	negativeHalf := G.NewConstant(-0.5)
	dims := float64(mean.Shape()[1])
	term1 := G.NewConstant((-dims / 2.0) * math.Log(2*math.Pi))

	// log det of the diagonal covariance is the sum of log variances
	variance := G.Must(G.Square(std))
	term2 := G.Must(G.Sum(G.Must(G.Log(variance)), 1))
	term2 = G.Must(G.HadamardProd(term2, negativeHalf))

	// Calculate (-1/2) * (A - μ)^T σ^(-2) (A - μ) with everything
	// stored as rows of diagonals.
	diff := G.Must(G.Sub(actions, mean))
	exponent := G.Must(G.HadamardDiv(diff, variance))
	exponent = G.Must(G.HadamardProd(exponent, diff))
	exponent = G.Must(G.Sum(exponent, 1))
	exponent = G.Must(G.HadamardProd(exponent, negativeHalf))

	terms := G.Must(G.Add(term1, term2))
	return G.Must(G.Add(exponent, terms))
}

// GaussianKLMean adds the mean component of the decoupled KL divergence
// KL(target || online) between diagonal Gaussians to the graph: per
// dimension, (μ_online - μ_target)² / (2 σ_target²), averaged over the
// batch (rows). The result is a vector over action dimensions.
func GaussianKLMean(onlineMean, targetMean, targetStd *G.Node) *G.Node {
	two := G.NewConstant(2.0)

	diff := G.Must(G.Sub(onlineMean, targetMean))
	sq := G.Must(G.Square(diff))
	denom := G.Must(G.HadamardProd(G.Must(G.Square(targetStd)), two))
	kl := G.Must(G.HadamardDiv(sq, denom))
	return G.Must(G.Mean(kl, 0))
}

// GaussianKLStddev adds the standard-deviation component of the
// decoupled KL divergence KL(target || online) to the graph: per
// dimension, log(σ_online/σ_target) + σ_target²/(2 σ_online²) - 1/2,
// averaged over the batch (rows).
func GaussianKLStddev(onlineStd, targetStd *G.Node) *G.Node {
	two := G.NewConstant(2.0)
	half := G.NewConstant(0.5)

	ratio := G.Must(G.Log(G.Must(G.HadamardDiv(onlineStd, targetStd))))
	scaled := G.Must(G.HadamardDiv(
		G.Must(G.Square(targetStd)),
		G.Must(G.HadamardProd(G.Must(G.Square(onlineStd)), two)),
	))
	kl := G.Must(G.Add(ratio, scaled))
	kl = G.Must(G.Sub(kl, half))
	return G.Must(G.Mean(kl, 0))
}
