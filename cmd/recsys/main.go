// Copyright 2024 recsys-cotraining Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindis/recsys-cotraining/base/log"
	"github.com/mindis/recsys-cotraining/dataset"
	"github.com/mindis/recsys-cotraining/eval"
	"github.com/mindis/recsys-cotraining/model"
	"github.com/mindis/recsys-cotraining/model/knn"
	"github.com/mindis/recsys-cotraining/model/mf"
	"github.com/mindis/recsys-cotraining/sparse"
)

var rootCmd = &cobra.Command{
	Use:   "recsys",
	Short: "Train and evaluate recommender models on a ratings file",
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		if err := run(cmd); err != nil {
			log.Logger().Fatal("evaluation failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCmd.PersistentFlags().String("ratings", "", "path of the ratings file")
	rootCmd.PersistentFlags().String("test-ratings", "", "path of a pre-split test ratings file (skips the random split)")
	rootCmd.PersistentFlags().String("model", "knn", "model to train (knn or bpr)")
	rootCmd.PersistentFlags().Float64("test-ratio", 0.2, "fraction of interactions held out for testing")
	rootCmd.PersistentFlags().Float64("remove-top-pop", 0, "fraction of the most popular items removed up front")
	rootCmd.PersistentFlags().Int("top-n", 10, "length of recommendation lists")
	rootCmd.PersistentFlags().Int("min-ratings", 1, "minimum test ratings per evaluated user")
	rootCmd.PersistentFlags().String("strategy", "sequential", "evaluation strategy (sequential, parallel or random)")
	rootCmd.PersistentFlags().Int("jobs", 4, "number of parallel evaluation workers")
	rootCmd.PersistentFlags().Bool("include-seen", false, "keep already seen items in rankings")
	rootCmd.PersistentFlags().Int64("seed", 0, "random seed")
	// knn hyper-parameters
	rootCmd.PersistentFlags().String("similarity", "cosine", "item similarity function (cosine or dot)")
	rootCmd.PersistentFlags().Int("top-k", 50, "neighbors kept per weight matrix column")
	rootCmd.PersistentFlags().Bool("normalize", false, "normalize scores by the binarized profile")
	// bpr hyper-parameters
	rootCmd.PersistentFlags().Int("factors", 20, "number of latent factors")
	rootCmd.PersistentFlags().Int("epochs", 30, "number of training epochs")
	rootCmd.PersistentFlags().Float64("lr", 0.05, "learning rate")
	_ = rootCmd.MarkPersistentFlagRequired("ratings")
	log.AddFlags(rootCmd.PersistentFlags())
}

func run(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	path, _ := flags.GetString("ratings")
	testPath, _ := flags.GetString("test-ratings")
	seed, _ := flags.GetInt64("seed")
	var train, test *sparse.CSRMatrix
	if testPath != "" {
		if p, _ := flags.GetFloat64("remove-top-pop"); p > 0 {
			return errors.Errorf("top popular removal is not supported with a pre-split test file")
		}
		trainRatings, testRatings, err := dataset.LoadRatingsPair(path, testPath)
		if err != nil {
			return err
		}
		train, test = trainRatings.Matrix, testRatings.Matrix
	} else {
		ratings, err := dataset.LoadRatings(path)
		if err != nil {
			return err
		}
		matrix := ratings.Matrix
		if p, _ := flags.GetFloat64("remove-top-pop"); p > 0 {
			var removed []int32
			matrix, _, removed, err = sparse.RemoveTopPop(matrix, nil, p)
			if err != nil {
				return err
			}
			log.Logger().Info("remove top popular items", zap.Int("n_removed", len(removed)))
		}
		testRatio, _ := flags.GetFloat64("test-ratio")
		train, test = dataset.Split(matrix, testRatio, seed)
	}

	name, _ := flags.GetString("model")
	var rec model.Recommender
	switch name {
	case "knn":
		similarity, _ := flags.GetString("similarity")
		topK, _ := flags.GetInt("top-k")
		normalize, _ := flags.GetBool("normalize")
		rec = knn.NewItemKNN(model.Params{
			model.Similarity:  similarity,
			model.TopK:        topK,
			model.Normalize:   normalize,
			model.RandomState: seed,
		})
	case "bpr":
		factors, _ := flags.GetInt("factors")
		epochs, _ := flags.GetInt("epochs")
		lr, _ := flags.GetFloat64("lr")
		rec = mf.NewBPR(model.Params{
			model.NFactors:    factors,
			model.NEpochs:     epochs,
			model.Lr:          lr,
			model.RandomState: seed,
		})
	default:
		log.Logger().Fatal("unknown model", zap.String("model", name))
	}
	ctx := context.Background()
	jobs, _ := flags.GetInt("jobs")
	if err := rec.Fit(ctx, train, model.NewFitConfig().SetJobs(jobs)); err != nil {
		return err
	}

	config := eval.NewConfig()
	config.At, _ = flags.GetInt("top-n")
	config.MinRatingsPerUser, _ = flags.GetInt("min-ratings")
	includeSeen, _ := flags.GetBool("include-seen")
	config.ExcludeSeen = !includeSeen
	strategy, _ := flags.GetString("strategy")
	config.Strategy = eval.Strategy(strategy)
	config.Jobs = jobs
	config.RandomState = seed
	result, err := eval.NewEvaluator(train).Evaluate(ctx, rec, test, config)
	if err != nil {
		return err
	}
	log.Logger().Info("evaluation finished",
		zap.Float32("AUC", result[eval.AUC]),
		zap.Float32("precision", result[eval.Precision]),
		zap.Float32("recall", result[eval.Recall]),
		zap.Float32("map", result[eval.MAP]),
		zap.Float32("NDCG", result[eval.NDCG]),
		zap.Float32("MRR", result[eval.MRR]))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
