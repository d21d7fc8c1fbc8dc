package filestorage

import (
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// AWSS3 stores exports in an S3 bucket instead of the local filesystem.
// Credentials come from the usual AWS environment/config chain.
type AWSS3 struct {
	bucket   string
	uploader *s3manager.Uploader
	client   *s3.S3
}

// NewAWSS3 returns an S3 storage for the given region and bucket.
func NewAWSS3(region string, bucket string) (*AWSS3, error) {
	s3Session, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	return &AWSS3{
		bucket:   bucket,
		uploader: s3manager.NewUploader(s3Session),
		client:   s3.New(s3Session),
	}, nil
}

// StoreFile uploads srcpath to the bucket under the destpath key, then
// removes srcpath.
func (b *AWSS3) StoreFile(srcpath string, destpath string) error {
	f, err := os.Open(srcpath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = b.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(destpath),
		Body:   f,
	})
	if err != nil {
		return err
	}

	return os.Remove(srcpath)
}

// DeleteFile deletes filepath from the bucket.
func (b *AWSS3) DeleteFile(filepath string) error {
	_, err := b.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(filepath),
	})
	return err
}

// FileExists returns true if the key exists in the bucket.
func (b *AWSS3) FileExists(filepath string) bool {
	_, err := b.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(filepath),
	})
	return err == nil
}
