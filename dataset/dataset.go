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

package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/mindis/recsys-cotraining/base"
	"github.com/mindis/recsys-cotraining/base/log"
	"github.com/mindis/recsys-cotraining/sparse"
)

// Ratings is an interaction matrix together with the dictionaries that map
// its row and column indices back to the raw user and item identifiers.
type Ratings struct {
	Matrix   *sparse.CSRMatrix
	UserDict *FreqDict
	ItemDict *FreqDict
}

// scanRatings parses one ratings file, pushing raw identifiers through
// intern to get matrix coordinates.
func scanRatings(path string, intern func(user, item string) (int32, int32)) (users, items []int32, ratings []float32, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(fields) < 2 {
			return nil, nil, nil, errors.Errorf("dataset: malformed line %q in %s", line, path)
		}
		rating := float32(1)
		if len(fields) >= 3 {
			value, err := strconv.ParseFloat(fields[2], 32)
			if err != nil {
				return nil, nil, nil, errors.Trace(err)
			}
			rating = float32(value)
		}
		user, item := intern(fields[0], fields[1])
		users = append(users, user)
		items = append(items, item)
		ratings = append(ratings, rating)
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	return users, items, ratings, nil
}

// LoadRatings reads a ratings file into an interaction matrix. Each line
// holds `user item rating` separated by whitespace, commas or tabs. Lines
// starting with '%' or '#' are skipped. A missing rating column defaults
// to 1 (implicit feedback).
func LoadRatings(path string) (*Ratings, error) {
	userDict, itemDict := NewFreqDict(), NewFreqDict()
	users, items, ratings, err := scanRatings(path, func(user, item string) (int32, int32) {
		return userDict.Id(user), itemDict.Id(item)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	matrix, err := sparse.NewCSRFromTriplets(userDict.Count(), itemDict.Count(), users, items, ratings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load ratings",
		zap.String("path", path),
		zap.Int("n_users", matrix.Rows()),
		zap.Int("n_items", matrix.Cols()),
		zap.Int("n_ratings", matrix.NNZ()))
	return &Ratings{Matrix: matrix, UserDict: userDict, ItemDict: itemDict}, nil
}

// LoadRatingsPair reads a pre-split dataset: a training file and a test file
// sharing one pair of dictionaries, so row and column indices agree between
// the two matrices and both keep the same shape. Identifiers appearing only
// in the test file are interned without counting, which keeps dictionary
// frequencies a property of the training set and makes such cold items
// detectable.
func LoadRatingsPair(trainPath, testPath string) (train, test *Ratings, err error) {
	userDict, itemDict := NewFreqDict(), NewFreqDict()
	trainUsers, trainItems, trainRatings, err := scanRatings(trainPath, func(user, item string) (int32, int32) {
		return userDict.Id(user), itemDict.Id(item)
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	testUsers, testItems, testRatings, err := scanRatings(testPath, func(user, item string) (int32, int32) {
		return userDict.NotCount(user), itemDict.NotCount(item)
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	rows, cols := userDict.Count(), itemDict.Count()
	trainMatrix, err := sparse.NewCSRFromTriplets(rows, cols, trainUsers, trainItems, trainRatings)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	testMatrix, err := sparse.NewCSRFromTriplets(rows, cols, testUsers, testItems, testRatings)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	coldItems := 0
	for j := int32(0); j < int32(cols); j++ {
		if itemDict.Freq(j) == 0 {
			coldItems++
		}
	}
	if coldItems > 0 {
		log.Logger().Warn("test items without training interactions",
			zap.Int("n_items", coldItems))
	}
	log.Logger().Info("load ratings pair",
		zap.String("train_path", trainPath),
		zap.String("test_path", testPath),
		zap.Int("n_users", rows),
		zap.Int("n_items", cols),
		zap.Int("train_size", trainMatrix.NNZ()),
		zap.Int("test_size", testMatrix.NNZ()))
	train = &Ratings{Matrix: trainMatrix, UserDict: userDict, ItemDict: itemDict}
	test = &Ratings{Matrix: testMatrix, UserDict: userDict, ItemDict: itemDict}
	return train, test, nil
}

// Split partitions the interactions of m into a training and a test matrix
// by drawing each entry into the test set with probability testRatio. Both
// matrices keep the shape of m.
func Split(m *sparse.CSRMatrix, testRatio float64, seed int64) (train, test *sparse.CSRMatrix) {
	rng := base.NewRandomGenerator(seed)
	var (
		trainUsers, testUsers     []int32
		trainItems, testItems     []int32
		trainRatings, testRatings []float32
	)
	for i := int32(0); i < int32(m.Rows()); i++ {
		indices, values := m.Row(i)
		for k, j := range indices {
			if rng.Float64() < testRatio {
				testUsers = append(testUsers, i)
				testItems = append(testItems, j)
				testRatings = append(testRatings, values[k])
			} else {
				trainUsers = append(trainUsers, i)
				trainItems = append(trainItems, j)
				trainRatings = append(trainRatings, values[k])
			}
		}
	}
	// indices come straight from m, construction cannot fail
	train, _ = sparse.NewCSRFromTriplets(m.Rows(), m.Cols(), trainUsers, trainItems, trainRatings)
	test, _ = sparse.NewCSRFromTriplets(m.Rows(), m.Cols(), testUsers, testItems, testRatings)
	log.Logger().Info("split dataset",
		zap.Int("train_size", train.NNZ()),
		zap.Int("test_size", test.NNZ()))
	return
}
