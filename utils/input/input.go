package input

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tsinghua-fib-lab/agentsociety-greenwave/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

// 集合中的文档类型
const (
	classRoad     = "road"
	classJunction = "junction"
	classDemand   = "demand"
)

// Input 输入数据
type Input struct {
	Network *Network
}

// Init 加载输入数据
// 功能：根据配置从文件或MongoDB加载路网数据并校验
// 参数：c-配置对象
// 返回：加载完成的输入数据指针，失败时panic
// 算法说明：
// 1. 文件加载：配置了文件路径时从YAML文件加载
// 2. 数据库加载：否则连接MongoDB，按文档类型读取路段、路口与需求
// 3. 数据验证：确保所有数据的完整性和一致性
func Init(c config.Config) *Input {
	var (
		n   *Network
		err error
	)
	if c.Input.Network.File != "" {
		n, err = LoadFile(c.Input.Network.File)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		var client *mongo.Client
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(c.Input.URI))
		if err != nil {
			log.Panicf("failed to connect to mongodb: %v", err)
		}
		defer client.Disconnect(context.Background())
		n, err = LoadMongo(ctx, client, c.Input.Network)
	}
	if err != nil {
		log.Panicf("failed to load network: %v", err)
	}
	log.Infof("network: %d roads, %d junctions, %d demands", len(n.Roads), len(n.Junctions), len(n.Demands))
	return &Input{Network: n}
}

// Parse 解析YAML格式的路网数据并校验
func Parse(data []byte) (*Network, error) {
	var n Network
	if err := yaml.UnmarshalStrict(data, &n); err != nil {
		return nil, fmt.Errorf("parse network: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// LoadFile 从YAML文件加载路网数据
func LoadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network %s: %w", path, err)
	}
	return Parse(data)
}

// LoadMongo 从MongoDB集合加载路网数据
// 功能：集合中每个文档形如{class: road|junction|demand, data: {...}}
// 说明：未知类型的文档记录警告并忽略
func LoadMongo(ctx context.Context, client *mongo.Client, path config.InputPath) (*Network, error) {
	coll := client.Database(path.GetDb()).Collection(path.GetColl())
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	cur, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find in %s.%s: %w", path.DB, path.Col, err)
	}
	defer cur.Close(ctx)

	n := &Network{}
	for cur.Next(ctx) {
		class, ok := cur.Current.Lookup("class").StringValueOK()
		if !ok {
			log.Warnf("ignore document without class: %v", cur.Current)
			continue
		}
		data := cur.Current.Lookup("data")
		switch class {
		case classRoad:
			var r Road
			if err := data.Unmarshal(&r); err != nil {
				return nil, fmt.Errorf("decode road: %w", err)
			}
			n.Roads = append(n.Roads, r)
		case classJunction:
			var j Junction
			if err := data.Unmarshal(&j); err != nil {
				return nil, fmt.Errorf("decode junction: %w", err)
			}
			n.Junctions = append(n.Junctions, j)
		case classDemand:
			var d Demand
			if err := data.Unmarshal(&d); err != nil {
				return nil, fmt.Errorf("decode demand: %w", err)
			}
			n.Demands = append(n.Demands, d)
		default:
			log.Warnf("ignore document with unknown class %q", class)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s.%s: %w", path.DB, path.Col, err)
	}
	log.Infof("finish fetching from %s.%s", path.DB, path.Col)
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}
