package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rookery/pkg"
	"rookery/pkg/model"

	"github.com/spf13/cobra"
)

func TrainCommand() *cobra.Command {

	var trainFile string
	var testFile string
	var outputFile string
	var targetColumn string
	var trainingParameters pkg.TrainingParameters
	var modelParameters model.MLPConfig

	var cmd = &cobra.Command{
		Use:   "train -i trainData -o outputFile -t targetColumn",
		Short: "Trains a new classifier or regression model on CSV data and saves the trained model",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Train(trainFile, testFile, outputFile, targetColumn, modelParameters, trainingParameters)
		},
	}

	cmd.Flags().StringVarP(&trainFile, "train-file", "i", "", "name of train file")
	cmd.Flags().StringVarP(&testFile, "test-file", "", "", "name of test file (optional, otherwise the train file is split)")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to.")
	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", 16, "batch size")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "l", 0.01, "learning rate")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", 10, "loss report interval")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", 10, "number of epochs to train")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", 42, "random seed")
	cmd.Flags().StringSliceVarP(&trainingParameters.CategoricalColumns, "categorical-columns", "", nil, "list of columns holding categorical data")
	cmd.Flags().Float64VarP(&trainingParameters.InputDropout, "input-dropout-probability", "", 0.0, "probability of input dropout")
	cmd.Flags().IntVarP(&trainingParameters.Replicate, "replicate", "", 1, "number of copies of each training row")
	cmd.Flags().BoolVarP(&trainingParameters.NoScale, "no-scale", "", false, "disable rescaling of continuous features")
	cmd.Flags().BoolVarP(&trainingParameters.ContinuousTarget, "continuous-target", "", false, "train a regression model on a numeric target column")
	cmd.Flags().Float64VarP(&trainingParameters.SplitFraction, "split-fraction", "", 0.7, "fraction of rows used for training when no test file is given")
	cmd.Flags().StringVarP(&trainingParameters.HistoryFile, "history-file", "", "", "name of per-epoch loss history CSV output file (optional)")

	cmd.Flags().IntVarP(&modelParameters.CategoricalEmbeddingDimension, "categorical-embedding-size", "c", 1, "size of categorical embeddings")
	cmd.Flags().IntSliceVarP(&modelParameters.HiddenSizes, "hidden-sizes", "", []int{16, 16}, "sizes of the hidden layers")

	cmd.Flags().StringVarP(&targetColumn, "target-column", "t", "", "target column")

	_ = cmd.MarkFlagRequired("train-file")
	_ = cmd.MarkFlagRequired("output-file")
	_ = cmd.MarkFlagRequired("target-column")

	return cmd
}

func PretrainCommand() *cobra.Command {

	var trainDir string
	var testDir string
	var outputFile string
	var trainingParameters pkg.TrainingParameters
	var modelParameters model.ConvNetConfig
	visionConfig := model.DefaultVisionConfig()

	var cmd = &cobra.Command{
		Use:   "pretrain -i trainDir -o outputFile",
		Short: "Trains an image classifier from scratch on a directory with one subdirectory per class",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelParameters.InputChannels = 3
			return pkg.Pretrain(trainDir, testDir, outputFile, modelParameters, visionConfig, trainingParameters)
		},
	}

	cmd.Flags().StringVarP(&trainDir, "train-dir", "i", "", "name of train image directory")
	cmd.Flags().StringVarP(&testDir, "test-dir", "", "", "name of test image directory (optional, otherwise the train images are split)")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to.")
	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", 16, "batch size")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "l", 0.01, "learning rate")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", 10, "loss report interval")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", 10, "number of epochs to train")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", 42, "random seed")
	cmd.Flags().Float64VarP(&trainingParameters.SplitFraction, "split-fraction", "", 0.7, "fraction of images used for training when no test directory is given")
	cmd.Flags().StringVarP(&trainingParameters.HistoryFile, "history-file", "", "", "name of per-epoch loss history CSV output file (optional)")

	cmd.Flags().IntVarP(&visionConfig.ResizeTo, "resize", "", visionConfig.ResizeTo, "resize the shorter image side to this size before cropping")
	cmd.Flags().IntVarP(&visionConfig.CropSize, "crop", "", visionConfig.CropSize, "center crop size fed to the network")
	cmd.Flags().IntVarP(&modelParameters.Conv1Channels, "conv1-channels", "", 6, "output channels of the first convolution stage")
	cmd.Flags().IntVarP(&modelParameters.Conv2Channels, "conv2-channels", "", 16, "output channels of the second convolution stage")
	cmd.Flags().IntVarP(&modelParameters.KernelSize, "kernel-size", "", 5, "side of the square convolution kernels")
	cmd.Flags().IntVarP(&modelParameters.PoolSize, "pool-size", "", 2, "side of the square max pooling windows")

	_ = cmd.MarkFlagRequired("train-dir")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func FinetuneCommand() *cobra.Command {

	var modelFile string
	var trainDir string
	var testDir string
	var outputFile string
	var trainAll bool
	var trainingParameters pkg.TrainingParameters

	var cmd = &cobra.Command{
		Use:   "finetune -m modelFile -i trainDir -o outputFile",
		Short: "Retrains the classifier layer of a pretrained image model on a new set of classes",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Finetune(modelFile, trainDir, testDir, outputFile, trainAll, trainingParameters)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of pretrained model")
	cmd.Flags().StringVarP(&trainDir, "train-dir", "i", "", "name of train image directory")
	cmd.Flags().StringVarP(&testDir, "test-dir", "", "", "name of test image directory (optional, otherwise the train images are split)")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to.")
	cmd.Flags().BoolVarP(&trainAll, "train-all", "", false, "update the convolution stages as well as the classifier")
	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", 16, "batch size")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "l", 0.01, "learning rate")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", 10, "loss report interval")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", 10, "number of epochs to train")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", 42, "random seed")
	cmd.Flags().Float64VarP(&trainingParameters.SplitFraction, "split-fraction", "", 0.7, "fraction of images used for training when no test directory is given")
	cmd.Flags().StringVarP(&trainingParameters.HistoryFile, "history-file", "", "", "name of per-epoch loss history CSV output file (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("train-dir")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func TestCommand() *cobra.Command {
	var modelFile string
	var inputFile string
	var outputFile string
	var confusionFile string

	var cmd = &cobra.Command{
		Use:   "test -m modelFile -i input [-o outputFile] [--confusion-file confusionFile]",
		Short: "Runs the provided model on the specified labelled data and reports metrics",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Test(modelFile, inputFile, outputFile, confusionFile)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to test")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of data input file or image directory")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of per-record prediction output file (optional)")
	cmd.Flags().StringVarP(&confusionFile, "confusion-file", "", "", "name of confusion matrix CSV output file (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd

}

func PredictCommand() *cobra.Command {
	var modelFile string
	var inputFile string

	var cmd = &cobra.Command{
		Use:   "predict -m modelFile [-i input]",
		Short: "Runs the provided model on unlabelled input and prints predictions to stdout",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Predict(modelFile, inputFile)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to use")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of data input file or image file (optional, tabular models use stdin if not present)")

	_ = cmd.MarkFlagRequired("model")

	return cmd

}

var logLevel string
var logFormat string

func main() {

	Main := &cobra.Command{Use: "rookery", PersistentPreRun: setupLogging}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(PretrainCommand())
	Main.AddCommand(FinetuneCommand())
	Main.AddCommand(TestCommand())
	Main.AddCommand(PredictCommand())

	if err := Main.Execute(); err != nil {
		panic(err)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		panic("Invalid logging level specified")
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		panic("Invalid log format specified")

	}

}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
